package orderlist

// Payload is the document submitted to the external store. Field names
// follow the stored procurement request schema.
type Payload struct {
	Project         string          `json:"project,omitempty"`
	WorkPackage     string          `json:"work_package"`
	WorkflowState   string          `json:"workflow_state,omitempty"`
	CategoryList    CategoryList    `json:"category_list"`
	ProcurementList ProcurementList `json:"procurement_list"`
}

// CategoryList wraps the category entries.
type CategoryList struct {
	List []CategoryEntry `json:"list"`
}

// ProcurementList wraps the line items.
type ProcurementList struct {
	List []LineItem `json:"list"`
}

// Payload builds a fresh payload from the current editor state.
func (e *Editor) Payload(workPackage string) Payload {
	return Payload{
		WorkPackage:     workPackage,
		CategoryList:    CategoryList{List: e.Categories()},
		ProcurementList: ProcurementList{List: e.Items()},
	}
}
