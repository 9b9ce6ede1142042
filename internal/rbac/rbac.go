package rbac

type Role string
type Action string

const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
)

const (
	ActionRead  Action = "read"
	ActionTag   Action = "tag"
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleWriter:
		return action == ActionRead || action == ActionTag || action == ActionAdmin
	case RoleReader:
		return action == ActionRead
	default:
		return false
	}
}
