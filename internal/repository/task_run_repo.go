package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/scene-match/internal/db"
)

// TaskRunRepository persists scheduler run records so due-time tracking
// survives restarts.
type TaskRunRepository struct {
	db *gorm.DB
}

// NewTaskRunRepository creates a new repository bound to the given DB connection.
func NewTaskRunRepository(database *gorm.DB) *TaskRunRepository {
	return &TaskRunRepository{db: database}
}

// Save overwrites the record for run.TaskName.
func (r *TaskRunRepository) Save(ctx context.Context, run db.TaskRun) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "task_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"last_run_at", "last_success_at", "last_status", "last_error",
				"consecutive_failures", "last_item_failures", "updated_at",
			}),
		}).
		Create(&run).Error
	return storeErr(err, "save task run")
}

// LoadAll returns every stored record keyed by task name.
func (r *TaskRunRepository) LoadAll(ctx context.Context) (map[string]db.TaskRun, error) {
	var rows []db.TaskRun
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, storeErr(err, "load task runs")
	}
	out := make(map[string]db.TaskRun, len(rows))
	for _, row := range rows {
		out[row.TaskName] = row
	}
	return out, nil
}
