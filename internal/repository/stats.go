package repository

import (
	"database/sql"

	"github.com/foxzi/listmail/internal/models"
)

type StatsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Dashboard returns dashboard counters. An empty ownerID covers all owners.
func (r *StatsRepository) Dashboard(ownerID string, latest int) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}

	ownerClause := ""
	args := []any{}
	if ownerID != "" {
		ownerClause = " AND owner_id = ?"
		args = append(args, ownerID)
	}

	err := r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'started' THEN 1 ELSE 0 END), 0)
		FROM mailings WHERE 1=1`+ownerClause, args...,
	).Scan(&stats.TotalMailings, &stats.ActiveMailings)
	if err != nil {
		return nil, err
	}

	if err := r.db.QueryRow("SELECT COUNT(*) FROM recipients WHERE 1=1"+ownerClause, args...).Scan(&stats.TotalRecipients); err != nil {
		return nil, err
	}

	err = r.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN a.status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN a.status = 'fail' THEN 1 ELSE 0 END), 0)
		FROM mailing_attempts a JOIN mailings m ON m.id = a.mailing_id
		WHERE 1=1`+prefixed(ownerClause, "m."), args...,
	).Scan(&stats.AttemptsSuccess, &stats.AttemptsFail)
	if err != nil {
		return nil, err
	}

	if latest <= 0 {
		latest = 5
	}
	rows, err := r.db.Query(mailingSelect+" WHERE ml.status = 'started'"+prefixed(ownerClause, "ml.")+
		" ORDER BY ml.start_time DESC LIMIT ?", append(args, latest)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats.LatestStarted = []models.Mailing{}
	for rows.Next() {
		m, err := scanMailing(rows)
		if err != nil {
			return nil, err
		}
		stats.LatestStarted = append(stats.LatestStarted, *m)
	}
	return stats, rows.Err()
}

// StatusCounts returns the number of mailings per status
func (r *StatsRepository) StatusCounts() (map[models.MailingStatus]int, error) {
	rows, err := r.db.Query("SELECT status, COUNT(*) FROM mailings GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[models.MailingStatus]int{
		models.MailingCreated:  0,
		models.MailingStarted:  0,
		models.MailingFinished: 0,
	}
	for rows.Next() {
		var status models.MailingStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func prefixed(clause, alias string) string {
	if clause == "" {
		return ""
	}
	return " AND " + alias + "owner_id = ?"
}
