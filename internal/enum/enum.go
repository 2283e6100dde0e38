package enum

// ── Line item status (stored in the procurement_list documents) ──

const (
	ItemStatusPending = "Pending" // item exists in the catalog
	ItemStatusRequest = "Request" // ad-hoc item awaiting catalog review
)

// ── Session modes ──

const (
	SessionModeCreate  = "create"
	SessionModeEdit    = "edit"
	SessionModeResolve = "resolve"
)

// ── Workflow state set on a resolved request ──

const (
	WorkflowStatePending  = "Pending"
	WorkflowStateRejected = "Rejected"
)

// ── Roles allowed to raise or change procurement requests ──

const (
	UserRoleAdmin                = "ADMIN"
	UserRoleProjectManager       = "PROJECT_MANAGER"
	UserRoleProjectLead          = "PROJECT_LEAD"
	UserRoleProcurementExecutive = "PROCUREMENT_EXECUTIVE"
)

// ── Notification variants ──

const (
	VariantDefault     = "default"
	VariantSuccess     = "success"
	VariantDestructive = "destructive"
)

// ── Document types in the external document store ──

const (
	DocTypeProcurementRequests = "Procurement Requests"
	DocTypeWorkPackages        = "Work Packages"
	DocTypeCategory            = "Category"
	DocTypeItems               = "Items"
	DocTypeUsers               = "Users"
)

// ── Unit vocabulary ──

const (
	UnitBox    = "BOX"
	UnitRoll   = "ROLL"
	UnitLength = "LENGTH"
	UnitMeter  = "MTR"
	UnitNos    = "NOS"
	UnitKgs    = "KGS"
	UnitPairs  = "PAIRS"
	UnitPacks  = "PACKS"
	UnitDrum   = "DRUM"
	UnitCoil   = "COIL"
	UnitSqMtr  = "SQMTR"
	UnitLtr    = "LTR"
	UnitBundle = "BUNDLE"
	UnitSqFt   = "SQFT"
	UnitSet    = "SET"
	UnitBags   = "BAGS"
	UnitRFT    = "RFT"
	UnitTon    = "TON"
	UnitCarton = "CARTON"
)

// Units lists the accepted units of measure in display order.
var Units = []string{
	UnitNos, UnitBox, UnitRoll, UnitLength, UnitMeter, UnitKgs, UnitPairs,
	UnitPacks, UnitDrum, UnitCoil, UnitSqMtr, UnitLtr, UnitBundle, UnitSqFt,
	UnitSet, UnitBags, UnitRFT, UnitTon, UnitCarton,
}

// IsUnit reports whether u belongs to the unit vocabulary.
func IsUnit(u string) bool {
	for _, v := range Units {
		if v == u {
			return true
		}
	}
	return false
}
