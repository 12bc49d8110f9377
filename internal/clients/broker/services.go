package broker

import "github.com/aristath/rebalancer/internal/domain"

// Gateway service codes.
const (
	svcDomesticDeposit   = "SCAP"
	svcDomesticHoldings  = "SATPS"
	svcDomesticQuote     = "SCP"
	svcDomesticHistory   = "SCPD"
	svcDomesticBuy       = "SCABO"
	svcDomesticSell      = "SCAAO"
	svcDomesticExecuted  = "TC8001R"
	svcDomesticOpen      = "SMCP"
	svcDomesticCancel    = "SMCO"
	svcOverseasDeposit   = "OS_US_DNCL"
	svcOverseasHoldings  = "OS_US_CBLC"
	svcOverseasQuote     = "OS_ST01"
	svcOverseasHistory   = "OS_ST03"
	svcOverseasBuy       = "OS_US_BUY"
	svcOverseasSell      = "OS_US_SEL"
	svcOverseasExecuted  = "OS_US_CCLD"
	svcOverseasOpen      = "OS_US_NCCS"
	svcOverseasCancel    = "OS_US_CNC"
	svcOverseasMargin    = "OS_OS3004R"
	overseasMarginRegion = "512"
)

type serviceSet struct {
	deposit, holdings, quote, history string
	buy, sell, executed, open, cancel string
}

var (
	domesticServices = serviceSet{
		deposit:  svcDomesticDeposit,
		holdings: svcDomesticHoldings,
		quote:    svcDomesticQuote,
		history:  svcDomesticHistory,
		buy:      svcDomesticBuy,
		sell:     svcDomesticSell,
		executed: svcDomesticExecuted,
		open:     svcDomesticOpen,
		cancel:   svcDomesticCancel,
	}
	overseasServices = serviceSet{
		deposit:  svcOverseasDeposit,
		holdings: svcOverseasHoldings,
		quote:    svcOverseasQuote,
		history:  svcOverseasHistory,
		buy:      svcOverseasBuy,
		sell:     svcOverseasSell,
		executed: svcOverseasExecuted,
		open:     svcOverseasOpen,
		cancel:   svcOverseasCancel,
	}
)

func servicesFor(market domain.MarketCode) serviceSet {
	if market.IsDomestic() {
		return domesticServices
	}
	return overseasServices
}

func servicesForTarget(target domain.Target) serviceSet {
	if target == domain.TargetDomestic {
		return domesticServices
	}
	return overseasServices
}
