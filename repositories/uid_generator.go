package repositories

import (
	"fmt"

	"clinical-mdr-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NextUID draws the next sequential uid for label, e.g. "Activity_000001".
// It must run inside the transaction that persists the new row.
func NextUID(tx *gorm.DB, label string) (string, error) {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UIDCounter{Label: label}).Error
	if err != nil {
		return "", err
	}
	err = tx.Model(&models.UIDCounter{}).
		Where("label = ?", label).
		UpdateColumn("counter", gorm.Expr("counter + 1")).Error
	if err != nil {
		return "", err
	}
	var counter models.UIDCounter
	if err := tx.Where("label = ?", label).First(&counter).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%06d", label, counter.Counter), nil
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// lockingClause returns SELECT ... FOR UPDATE where the dialect supports it.
func lockingClause(db *gorm.DB, forUpdate bool) *gorm.DB {
	if forUpdate && isPostgres(db) {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}
