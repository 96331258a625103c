package repositories

import (
	"sort"

	"clinical-mdr-api/domain"
	"clinical-mdr-api/models"
)

// RelationRef is one typed link from a value to another item.
type RelationRef struct {
	Kind      models.RelationKind
	TargetUID string
	Position  int
}

// ItemCapability is what the generic repository needs to know about one
// entity type: its uid label, how to split a value into plain content plus
// relations and how to join them back.
type ItemCapability[V domain.Value[V]] interface {
	Kind() models.EntityKind
	Relations(v V) []RelationRef
	Content(v V) V
	Build(content V, relations []RelationRef) V
}

func refs(kind models.RelationKind, uids []string) []RelationRef {
	out := make([]RelationRef, 0, len(uids))
	for i, uid := range uids {
		out = append(out, RelationRef{Kind: kind, TargetUID: uid, Position: i})
	}
	return out
}

func single(kind models.RelationKind, uid string) []RelationRef {
	if uid == "" {
		return nil
	}
	return []RelationRef{{Kind: kind, TargetUID: uid}}
}

// targets picks the uids of kind in position order.
func targets(relations []RelationRef, kind models.RelationKind) []string {
	picked := make([]RelationRef, 0, len(relations))
	for _, r := range relations {
		if r.Kind == kind {
			picked = append(picked, r)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Position < picked[j].Position })
	var uids []string
	for _, r := range picked {
		uids = append(uids, r.TargetUID)
	}
	return uids
}

func firstTarget(relations []RelationRef, kind models.RelationKind) string {
	if uids := targets(relations, kind); len(uids) > 0 {
		return uids[0]
	}
	return ""
}

type ActivityGroupCapability struct{}

func (ActivityGroupCapability) Kind() models.EntityKind { return models.KindActivityGroup }
func (ActivityGroupCapability) Relations(models.ActivityGroupValue) []RelationRef {
	return nil
}
func (ActivityGroupCapability) Content(v models.ActivityGroupValue) models.ActivityGroupValue {
	return v
}
func (ActivityGroupCapability) Build(v models.ActivityGroupValue, _ []RelationRef) models.ActivityGroupValue {
	return v
}

type ActivitySubGroupCapability struct{}

func (ActivitySubGroupCapability) Kind() models.EntityKind { return models.KindActivitySubGroup }
func (ActivitySubGroupCapability) Relations(v models.ActivitySubGroupValue) []RelationRef {
	return refs(models.RelationActivityGroup, v.ActivityGroupUIDs)
}
func (ActivitySubGroupCapability) Content(v models.ActivitySubGroupValue) models.ActivitySubGroupValue {
	v.ActivityGroupUIDs = nil
	return v
}
func (ActivitySubGroupCapability) Build(v models.ActivitySubGroupValue, r []RelationRef) models.ActivitySubGroupValue {
	v.ActivityGroupUIDs = targets(r, models.RelationActivityGroup)
	return v
}

type ActivityCapability struct{}

func (ActivityCapability) Kind() models.EntityKind { return models.KindActivity }
func (ActivityCapability) Relations(v models.ActivityValue) []RelationRef {
	return refs(models.RelationActivitySubGroup, v.ActivitySubGroupUIDs)
}
func (ActivityCapability) Content(v models.ActivityValue) models.ActivityValue {
	v.ActivitySubGroupUIDs = nil
	return v
}
func (ActivityCapability) Build(v models.ActivityValue, r []RelationRef) models.ActivityValue {
	v.ActivitySubGroupUIDs = targets(r, models.RelationActivitySubGroup)
	return v
}

type CompoundCapability struct{}

func (CompoundCapability) Kind() models.EntityKind { return models.KindCompound }
func (CompoundCapability) Relations(v models.CompoundValue) []RelationRef {
	return append(refs(models.RelationTerm, v.SubstanceUIDs), refs(models.RelationUnitDefinition, v.DoseUnitUIDs)...)
}
func (CompoundCapability) Content(v models.CompoundValue) models.CompoundValue {
	v.SubstanceUIDs, v.DoseUnitUIDs = nil, nil
	return v
}
func (CompoundCapability) Build(v models.CompoundValue, r []RelationRef) models.CompoundValue {
	v.SubstanceUIDs = targets(r, models.RelationTerm)
	v.DoseUnitUIDs = targets(r, models.RelationUnitDefinition)
	return v
}

type UnitDefinitionCapability struct{}

func (UnitDefinitionCapability) Kind() models.EntityKind { return models.KindUnitDefinition }
func (UnitDefinitionCapability) Relations(v models.UnitDefinitionValue) []RelationRef {
	return single(models.RelationTerm, v.UnitDimensionUID)
}
func (UnitDefinitionCapability) Content(v models.UnitDefinitionValue) models.UnitDefinitionValue {
	v.UnitDimensionUID = ""
	return v
}
func (UnitDefinitionCapability) Build(v models.UnitDefinitionValue, r []RelationRef) models.UnitDefinitionValue {
	v.UnitDimensionUID = firstTarget(r, models.RelationTerm)
	return v
}

type CTCodelistCapability struct{}

func (CTCodelistCapability) Kind() models.EntityKind { return models.KindCTCodelist }
func (CTCodelistCapability) Relations(v models.CTCodelistValue) []RelationRef {
	return refs(models.RelationTerm, v.TermUIDs)
}
func (CTCodelistCapability) Content(v models.CTCodelistValue) models.CTCodelistValue {
	v.TermUIDs = nil
	return v
}
func (CTCodelistCapability) Build(v models.CTCodelistValue, r []RelationRef) models.CTCodelistValue {
	v.TermUIDs = targets(r, models.RelationTerm)
	return v
}

type CTTermCapability struct{}

func (CTTermCapability) Kind() models.EntityKind { return models.KindCTTerm }
func (CTTermCapability) Relations(v models.CTTermValue) []RelationRef {
	return refs(models.RelationCodelist, v.CodelistUIDs)
}
func (CTTermCapability) Content(v models.CTTermValue) models.CTTermValue {
	v.CodelistUIDs = nil
	return v
}
func (CTTermCapability) Build(v models.CTTermValue, r []RelationRef) models.CTTermValue {
	v.CodelistUIDs = targets(r, models.RelationCodelist)
	return v
}
