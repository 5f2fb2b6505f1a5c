// Package access holds the role-gate: a single declarative table of which
// roles may invoke which operation on which resource.
package access

import (
	"fmt"

	"document-portal/portal-backend/internal/apperr"
)

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleManager        Role = "manager"
	RoleDepartmentHead Role = "department_head"
	RoleClerk          Role = "clerk"
	RoleStaff          Role = "staff"
)

var roleTitles = map[Role]string{
	RoleAdmin:          "Quản trị viên",
	RoleManager:        "Lãnh đạo",
	RoleDepartmentHead: "Trưởng phòng",
	RoleClerk:          "Văn thư",
	RoleStaff:          "Chuyên viên",
}

// Title is the Vietnamese display name used in history entries.
func (r Role) Title() string {
	if t, ok := roleTitles[r]; ok {
		return t
	}
	return string(r)
}

func (r Role) Valid() bool {
	_, ok := roleTitles[r]
	return ok
}

type Resource string

const (
	ResourceOutgoing   Resource = "outgoing"
	ResourceInternal   Resource = "internal"
	ResourceIncoming   Resource = "incoming"
	ResourceResponse   Resource = "response"
	ResourceSchedule   Resource = "schedule"
	ResourceUser       Resource = "user"
	ResourceDepartment Resource = "department"
)

type Operation string

const (
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpSubmit   Operation = "submit"
	OpApprove  Operation = "approve"
	OpReject   Operation = "reject"
	OpIssue    Operation = "issue"
	OpDelete   Operation = "delete"
	OpAssign   Operation = "assign"
	OpComplete Operation = "complete"
	OpReply    Operation = "reply"
	OpResubmit Operation = "resubmit"
	OpExport   Operation = "export"
	OpAttach   Operation = "attach"
	OpDetach   Operation = "detach"
)

type key struct {
	resource  Resource
	operation Operation
}

var (
	approvers = []Role{RoleDepartmentHead, RoleManager, RoleAdmin}
	issuers   = []Role{RoleClerk, RoleAdmin}
	anyone    = []Role(nil)
)

// policy is the whole authorization surface of the workflow engine. A nil
// role set means any authenticated actor; ownership rules are checked by the
// services after the gate passes.
var policy = map[key][]Role{
	{ResourceOutgoing, OpCreate}:  anyone,
	{ResourceOutgoing, OpUpdate}:  anyone,
	{ResourceOutgoing, OpSubmit}:  anyone,
	{ResourceOutgoing, OpApprove}: approvers,
	{ResourceOutgoing, OpReject}:  approvers,
	{ResourceOutgoing, OpIssue}:   issuers,
	{ResourceOutgoing, OpDelete}:  anyone,
	{ResourceOutgoing, OpAttach}:  anyone,
	{ResourceOutgoing, OpDetach}:  anyone,
	{ResourceOutgoing, OpExport}:  {RoleClerk, RoleManager, RoleAdmin},

	{ResourceInternal, OpCreate}:  anyone,
	{ResourceInternal, OpUpdate}:  anyone,
	{ResourceInternal, OpSubmit}:  anyone,
	{ResourceInternal, OpApprove}: approvers,
	{ResourceInternal, OpReject}:  approvers,
	{ResourceInternal, OpIssue}:   issuers,
	{ResourceInternal, OpDelete}:  anyone,
	{ResourceInternal, OpReply}:   anyone,
	{ResourceInternal, OpAttach}:  anyone,
	{ResourceInternal, OpDetach}:  anyone,

	{ResourceIncoming, OpCreate}:   issuers,
	{ResourceIncoming, OpUpdate}:   {RoleClerk, RoleDepartmentHead, RoleManager, RoleAdmin},
	{ResourceIncoming, OpAssign}:   approvers,
	{ResourceIncoming, OpComplete}: approvers,
	{ResourceIncoming, OpDelete}:   issuers,
	{ResourceIncoming, OpAttach}:   anyone,
	{ResourceIncoming, OpDetach}:   anyone,
	{ResourceIncoming, OpExport}:   {RoleClerk, RoleManager, RoleAdmin},

	{ResourceResponse, OpCreate}:   anyone,
	{ResourceResponse, OpApprove}:  approvers,
	{ResourceResponse, OpReject}:   approvers,
	{ResourceResponse, OpResubmit}: anyone,

	{ResourceSchedule, OpCreate}:  anyone,
	{ResourceSchedule, OpUpdate}:  anyone,
	{ResourceSchedule, OpApprove}: approvers,
	{ResourceSchedule, OpReject}:  approvers,
	{ResourceSchedule, OpDelete}:  anyone,

	{ResourceUser, OpCreate}:       {RoleAdmin},
	{ResourceDepartment, OpCreate}: {RoleAdmin},
}

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	DepartmentID *uint  `json:"department_id,omitempty"`
	Roles        []Role `json:"roles"`
}

func (a Actor) Has(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool { return a.Has(RoleAdmin) }

// InDepartment reports whether the actor belongs to the given department.
func (a Actor) InDepartment(id *uint) bool {
	return id != nil && a.DepartmentID != nil && *a.DepartmentID == *id
}

// RequiredRoles returns the declared role set for an operation and whether the
// operation is declared at all.
func RequiredRoles(res Resource, op Operation) ([]Role, bool) {
	roles, ok := policy[key{res, op}]
	return roles, ok
}

// Allowed consults the policy table. Undeclared operations are denied.
func Allowed(res Resource, op Operation, actor Actor) bool {
	roles, ok := RequiredRoles(res, op)
	if !ok || actor.ID == 0 {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if actor.Has(r) {
			return true
		}
	}
	return false
}

// Check is Allowed as an error suitable for returning from a service.
func Check(res Resource, op Operation, actor Actor) error {
	if Allowed(res, op, actor) {
		return nil
	}
	return fmt.Errorf("%w: %s may not %s %s", apperr.ErrForbidden, actorLabel(actor), op, res)
}

// tierOrder ranks approving roles from highest to lowest.
var tierOrder = []Role{RoleAdmin, RoleManager, RoleDepartmentHead, RoleClerk, RoleStaff}

// Tier returns the highest-ranked role the actor holds within the role set
// declared for the operation. History entries name this tier.
func Tier(res Resource, op Operation, actor Actor) Role {
	roles, _ := RequiredRoles(res, op)
	for _, r := range tierOrder {
		if !actor.Has(r) {
			continue
		}
		if len(roles) == 0 {
			return r
		}
		for _, allowed := range roles {
			if allowed == r {
				return r
			}
		}
	}
	return ""
}

// IsTopRole reports whether the actor holds a leadership role (manager or
// admin); approvals by these roles close incoming documents.
func IsTopRole(actor Actor) bool {
	return actor.Has(RoleManager) || actor.Has(RoleAdmin)
}

func actorLabel(a Actor) string {
	if a.Name != "" {
		return fmt.Sprintf("user %s", a.Name)
	}
	return fmt.Sprintf("user %d", a.ID)
}
