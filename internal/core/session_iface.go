package core

// ViewerID identifies one UI collaborator connected to the control API.
type ViewerID string

// ViewerKind tells the full-screen view apart from the picture-in-picture one.
type ViewerKind string

const (
	ViewerMain ViewerKind = "main"
	ViewerPiP  ViewerKind = "pip"
)

// ViewerSession binds viewer meta and its transport endpoint.
// This is what the registry stores and fans events out to.
type ViewerSession interface {
	ID() ViewerID
	Kind() ViewerKind
	Signal() SignalConnection
}

type viewerSession struct {
	id   ViewerID
	kind ViewerKind
	sig  SignalConnection
}

func NewViewerSession(id ViewerID, kind ViewerKind, sig SignalConnection) ViewerSession {
	return &viewerSession{id: id, kind: kind, sig: sig}
}

func (v *viewerSession) ID() ViewerID             { return v.id }
func (v *viewerSession) Kind() ViewerKind         { return v.kind }
func (v *viewerSession) Signal() SignalConnection { return v.sig }

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []ViewerSession
}
