package domain

// ActorKind identifies who performed a change.
type ActorKind string

const (
	ActorKindUser       ActorKind = "user"
	ActorKindTechnician ActorKind = "technician"
	ActorKindAdmin      ActorKind = "admin"
	ActorKindSystem     ActorKind = "system"
)

// Actor is a (kind, id) pair attributed to transitions, history and audit
// entries. System actions carry an empty ID.
type Actor struct {
	Kind ActorKind
	ID   string
}

// SystemActor is used for changes the engine makes on its own.
func SystemActor() Actor {
	return Actor{Kind: ActorKindSystem}
}
