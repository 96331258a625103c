package repositories

import "clinical-mdr-api/models"

// relationTargets resolves every relation kind to the entity it points to.
var relationTargets = map[models.RelationKind]models.EntityKind{
	models.RelationTerm:             models.KindCTTerm,
	models.RelationUnitDefinition:   models.KindUnitDefinition,
	models.RelationActivityGroup:    models.KindActivityGroup,
	models.RelationActivitySubGroup: models.KindActivitySubGroup,
	models.RelationActivity:         models.KindActivity,
	models.RelationCodelist:         models.KindCTCodelist,
}

// RelationTarget is the entity kind a relation of kind k must reference.
func RelationTarget(k models.RelationKind) (models.EntityKind, bool) {
	target, ok := relationTargets[k]
	return target, ok
}
