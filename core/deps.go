package core

import (
	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/internal/fatal"
	"pkt.systems/pslog"
)

// ServiceDeps captures dependencies for the core service. Catalog and
// Classifier fall back to the built-in defaults; Gateway may be nil, in
// which case execution is rejected.
type ServiceDeps struct {
	Catalog    *catalog.Catalog
	Gateway    Gateway
	Classifier fatal.Classifier
	EventSink  EventSink
	Logger     pslog.Logger
}
