package di

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/clientdata"
	"github.com/aristath/rebalancer/internal/clients/alpaca"
	"github.com/aristath/rebalancer/internal/clients/broker"
	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/domain"
)

// BrokerPool hands out one gateway session per account. Callers sharing
// an account share its client, so the account never has two requests in
// flight. A session is closed when its last holder releases it.
type BrokerPool struct {
	cfg   *config.Config
	cache *clientdata.Repository
	log   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*brokerSession
}

type brokerSession struct {
	client  domain.BrokerClient
	gateway *broker.Gateway
	refs    int
}

// NewBrokerPool creates an empty pool. US venues go to Alpaca when it is configured.
func NewBrokerPool(cfg *config.Config, cache *clientdata.Repository, log zerolog.Logger) *BrokerPool {
	return &BrokerPool{
		cfg:      cfg,
		cache:    cache,
		log:      log.With().Str("component", "broker_pool").Logger(),
		sessions: make(map[string]*brokerSession),
	}
}

// Open returns the session of the test or real account, creating it when
// none is open. The release func may be called more than once.
func (p *BrokerPool) Open(test bool) (domain.BrokerClient, func(), error) {
	account, password, field := p.cfg.Account.RealNumber, p.cfg.Account.RealPassword, "ACCOUNT_REAL_NUMBER"
	if test {
		account, password, field = p.cfg.Account.TestNumber, p.cfg.Account.TestPassword, "ACCOUNT_TEST_NUMBER"
	}
	if account == "" {
		return nil, nil, &domain.ConfigurationError{Field: field, Reason: "account number is not set"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[account]
	if !ok {
		session = p.newSession(account, password, test)
		p.sessions[account] = session
		p.log.Debug().Str("account", account).Msg("Broker session opened")
	}
	session.refs++

	var once sync.Once
	release := func() {
		once.Do(func() { p.release(account, session) })
	}
	return session.client, release, nil
}

func (p *BrokerPool) newSession(account, password string, test bool) *brokerSession {
	client := broker.NewClient(broker.Config{
		BaseURL:   p.cfg.Broker.BaseURL,
		AppKey:    p.cfg.Broker.AppKey,
		AppSecret: p.cfg.Broker.AppSecret,
		Account:   account,
		Password:  password,
		Test:      test,
		RateLimit: p.cfg.Broker.RateLimit,
		Timeout:   p.cfg.Broker.Timeout,
	}, p.log)
	gateway := broker.NewGateway(client, p.cache, p.log)

	session := &brokerSession{client: gateway, gateway: gateway}
	if p.cfg.Alpaca.Enabled() {
		overseas := alpaca.NewAdapter(alpaca.Config{
			APIKey:    p.cfg.Alpaca.APIKey,
			APISecret: p.cfg.Alpaca.APISecret,
			BaseURL:   p.cfg.Alpaca.BaseURL,
			DataURL:   p.cfg.Alpaca.DataURL,
		}, p.log)
		session.client = alpaca.NewRouter(gateway, overseas)
	}
	return session
}

// release closes the session under the pool lock, so a replacement for the
// same account cannot start while the old worker drains.
func (p *BrokerPool) release(account string, session *brokerSession) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session.refs--
	if session.refs > 0 {
		return
	}
	if p.sessions[account] == session {
		delete(p.sessions, account)
	}
	session.gateway.Close()
	p.log.Debug().Str("account", account).Msg("Broker session closed")
}

// OpenSessions reports how many sessions are currently open.
func (p *BrokerPool) OpenSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close closes every session regardless of holders.
func (p *BrokerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for account, session := range p.sessions {
		session.gateway.Close()
		delete(p.sessions, account)
	}
}

// accountFor returns the account number used as the default report name.
func accountFor(cfg *config.Config) func(test bool) string {
	return func(test bool) string {
		if test {
			return cfg.Account.TestNumber
		}
		return cfg.Account.RealNumber
	}
}
