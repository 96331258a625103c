package models

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Library{},
		&VersionRoot{},
		&VersionValue{},
		&VersionRelationship{},
		&ItemRelation{},
		&UIDCounter{},
		&Study{},
		&StudyAction{},
		&StudyEpoch{},
		&StudyVisit{},
	}
}
