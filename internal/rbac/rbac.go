package rbac

type Role string
type Capability string

const (
	RoleHost     Role = "host"
	RoleEditor   Role = "editor"
	RoleReviewer Role = "reviewer"
	RoleObserver Role = "observer"
	RoleGuest    Role = "guest"
)

const (
	CapEdit             Capability = "edit"
	CapComment          Capability = "comment"
	CapShare            Capability = "share"
	CapInvite           Capability = "invite"
	CapModerate         Capability = "moderate"
	CapViewPrivateFiles Capability = "view_private_files"
	CapExecuteCode      Capability = "execute_code"
	CapAccessTerminal   Capability = "access_terminal"
)

// CapabilitySet is the per-participant permission record. It starts as the
// role default and may be edited afterwards (e.g. a host granting terminal
// access to one editor).
type CapabilitySet struct {
	CanEdit             bool `json:"canEdit"`
	CanComment          bool `json:"canComment"`
	CanShare            bool `json:"canShare"`
	CanInvite           bool `json:"canInvite"`
	CanModerate         bool `json:"canModerate"`
	CanViewPrivateFiles bool `json:"canViewPrivateFiles"`
	CanExecuteCode      bool `json:"canExecuteCode"`
	CanAccessTerminal   bool `json:"canAccessTerminal"`
}

// Capabilities returns the default capability set for a role.
func Capabilities(role Role) CapabilitySet {
	switch role {
	case RoleHost:
		return CapabilitySet{
			CanEdit:             true,
			CanComment:          true,
			CanShare:            true,
			CanInvite:           true,
			CanModerate:         true,
			CanViewPrivateFiles: true,
			CanExecuteCode:      true,
			CanAccessTerminal:   true,
		}
	case RoleEditor:
		return CapabilitySet{
			CanEdit:             true,
			CanComment:          true,
			CanShare:            true,
			CanViewPrivateFiles: true,
			CanExecuteCode:      true,
		}
	case RoleReviewer:
		return CapabilitySet{
			CanComment:          true,
			CanViewPrivateFiles: true,
		}
	case RoleObserver:
		return CapabilitySet{}
	case RoleGuest:
		return CapabilitySet{CanComment: true}
	default:
		return CapabilitySet{}
	}
}

func (c CapabilitySet) Has(cap Capability) bool {
	switch cap {
	case CapEdit:
		return c.CanEdit
	case CapComment:
		return c.CanComment
	case CapShare:
		return c.CanShare
	case CapInvite:
		return c.CanInvite
	case CapModerate:
		return c.CanModerate
	case CapViewPrivateFiles:
		return c.CanViewPrivateFiles
	case CapExecuteCode:
		return c.CanExecuteCode
	case CapAccessTerminal:
		return c.CanAccessTerminal
	default:
		return false
	}
}

func Can(role Role, cap Capability) bool {
	return Capabilities(role).Has(cap)
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleHost, RoleEditor, RoleReviewer, RoleObserver, RoleGuest:
		return Role(role)
	default:
		return RoleEditor
	}
}
