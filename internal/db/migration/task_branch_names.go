package migration

func init() {
	Register("backfill_task_branch_names", backfillTaskBranchNames)
	Register("backfill_task_status", backfillTaskStatus)
}

// Rows written before branch names were stored get the name the task would have been
// given at creation time.
func backfillTaskBranchNames(m *Migration) error {
	res := m.DB.Exec(`UPDATE tasks SET branch_name = 'feature/task-' || created_at WHERE branch_name = ''`)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		m.Log("backfilled branch names: ", res.RowsAffected)
	}
	return nil
}

func backfillTaskStatus(m *Migration) error {
	res := m.DB.Exec(`UPDATE tasks SET status = 'todo' WHERE status = ''`)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		m.Log("backfilled task status: ", res.RowsAffected)
	}
	return nil
}
