package record

// RelatedRecordSet holds every related entity loaded for one case, keyed by
// record id. Membership may be empty but never nil; entities that failed to
// load are simply absent.
type RelatedRecordSet struct {
	Accounts     map[string]Account   `json:"accounts"`
	Contacts     map[string]Contact   `json:"contacts"`
	Assets       map[string]Asset     `json:"assets"`
	OpenTasks    map[string]Task      `json:"openTasks"`
	RelatedCases map[string]Case      `json:"relatedCases"`
	WorkOrders   map[string]WorkOrder `json:"workOrders"`
	Quotes       map[string]Quote     `json:"quotes"`
}

// NewRelatedRecordSet returns a set with every map initialized so consumers
// never have to nil-check membership.
func NewRelatedRecordSet() RelatedRecordSet {
	return RelatedRecordSet{
		Accounts:     make(map[string]Account),
		Contacts:     make(map[string]Contact),
		Assets:       make(map[string]Asset),
		OpenTasks:    make(map[string]Task),
		RelatedCases: make(map[string]Case),
		WorkOrders:   make(map[string]WorkOrder),
		Quotes:       make(map[string]Quote),
	}
}

// Normalize replaces nil maps with empty ones. Needed after JSON decoding,
// which leaves absent collections nil.
func (r *RelatedRecordSet) Normalize() {
	if r.Accounts == nil {
		r.Accounts = make(map[string]Account)
	}
	if r.Contacts == nil {
		r.Contacts = make(map[string]Contact)
	}
	if r.Assets == nil {
		r.Assets = make(map[string]Asset)
	}
	if r.OpenTasks == nil {
		r.OpenTasks = make(map[string]Task)
	}
	if r.RelatedCases == nil {
		r.RelatedCases = make(map[string]Case)
	}
	if r.WorkOrders == nil {
		r.WorkOrders = make(map[string]WorkOrder)
	}
	if r.Quotes == nil {
		r.Quotes = make(map[string]Quote)
	}
}
