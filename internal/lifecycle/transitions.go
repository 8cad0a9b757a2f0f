package lifecycle

import (
	"github.com/dlcdb/dlcdb/internal/db/models"
)

// initialKinds lists the record kinds a device without any record may enter.
var initialKinds = map[models.RecordType]bool{
	models.RecordInRoom:  true,
	models.RecordOrdered: true,
}

// legalTransitions maps each record kind to the kinds reachable from it.
// INROOM→INROOM covers relocation, LENT→INROOM the return, LOST→INROOM the
// found case. REMOVED is terminal.
var legalTransitions = map[models.RecordType]map[models.RecordType]bool{
	models.RecordOrdered: {
		models.RecordInRoom: true,
	},
	models.RecordInRoom: {
		models.RecordInRoom:  true,
		models.RecordLent:    true,
		models.RecordLost:    true,
		models.RecordRemoved: true,
	},
	models.RecordLent: {
		models.RecordInRoom:  true,
		models.RecordLost:    true,
		models.RecordRemoved: true,
	},
	models.RecordLost: {
		models.RecordInRoom:  true,
		models.RecordRemoved: true,
	},
	models.RecordRemoved: {},
}

// CanTransition reports whether a device whose active record has kind from
// (nil for no record yet) may receive a record of kind to.
func CanTransition(from *models.RecordType, to models.RecordType) bool {
	if from == nil {
		return initialKinds[to]
	}
	return legalTransitions[*from][to]
}
