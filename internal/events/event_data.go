package events

// EventData is implemented by every typed event payload
type EventData interface {
	EventType() EventType
}

// ReportCreatedData contains data for ReportCreated events
type ReportCreatedData struct {
	ReportName  string `json:"report_name"`
	CreatedTime string `json:"created_time"`
	Target      string `json:"target"`
	Test        bool   `json:"test"`
}

func (d *ReportCreatedData) EventType() EventType { return ReportCreated }

// PricesRefreshedData contains data for PricesRefreshed events
type PricesRefreshedData struct {
	Target   string `json:"target"`
	Products int    `json:"products"`
	History  int    `json:"history_rows"`
}

func (d *PricesRefreshedData) EventType() EventType { return PricesRefreshed }

// PlanGeneratedData contains data for PlanGenerated events
type PlanGeneratedData struct {
	ReportName      string  `json:"report_name"`
	CreatedTime     string  `json:"created_time"`
	Rows            int     `json:"rows"`
	PlannedBudget   float64 `json:"planned_budge"`
	ToBeTotalAmount float64 `json:"tobe_total_amount"`
}

func (d *PlanGeneratedData) EventType() EventType { return PlanGenerated }

// OrderSubmittedData contains data for OrderSubmitted events
type OrderSubmittedData struct {
	ReportID string  `json:"report_id"`
	Code     string  `json:"product_code"`
	Market   string  `json:"market_code"`
	Side     string  `json:"order_type"`
	Quantity int64   `json:"count"`
	Price    float64 `json:"price"`
	OrderID  string  `json:"order_num"`
}

func (d *OrderSubmittedData) EventType() EventType { return OrderSubmitted }

// OrdersResolvedData contains data for OrdersResolved events
type OrdersResolvedData struct {
	ReportName string `json:"report_name"`
	Orders     int    `json:"orders"`
	Polls      int    `json:"polls"`
}

func (d *OrdersResolvedData) EventType() EventType { return OrdersResolved }

// OrderCancelledData contains data for OrderCancelled events
type OrderCancelledData struct {
	OrderID string `json:"order_num"`
	Market  string `json:"market_code"`
}

func (d *OrderCancelledData) EventType() EventType { return OrderCancelled }

// ReportArchivedData contains data for ReportArchived events
type ReportArchivedData struct {
	ReportName string `json:"report_name"`
	Key        string `json:"key"`
	SizeBytes  int64  `json:"size_bytes"`
}

func (d *ReportArchivedData) EventType() EventType { return ReportArchived }

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }
