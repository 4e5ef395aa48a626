package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/edusignal/retention-backend/internal/errors"
	"github.com/edusignal/retention-backend/internal/model"
)

// IndexedQuery narrows a student lookup to one indexed dimension. The
// store keeps one index per dimension, so only a single dimension is
// pushed down; everything else is filtered in memory by the caller.
type IndexedQuery struct {
	Dimension string
	Value     string
}

// Columns that back an index and may be used as the pushed-down
// dimension of FindByUniversity.
var indexedColumns = map[string]string{
	"faculty":           "faculty",
	"program":           "program",
	"enrollment_status": "enrollment_status",
	"risk_tier":         "risk_tier",
}

// StudentRepositoryInterface defines the methods the services need
type StudentRepositoryInterface interface {
	FindByUniversity(universityID string, q *IndexedQuery, limit, offset int) ([]model.Student, error)
	GetByID(universityID, id string) (*model.Student, error)
	UpdateRiskProfile(universityID, id, tier string, factors []string) error
	Create(s *model.Student) error
}

// StudentRepository is the concrete implementation
type StudentRepository struct {
	DB *sql.DB
}

const studentColumns = `id, university_id, first_name, last_name, email, faculty, program,
        enrollment_status, current_term, average_grade, approved_credits, total_credits,
        last_activity_at, risk_tier, risk_factors, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (*model.Student, error) {
	var s model.Student
	err := row.Scan(
		&s.ID, &s.UniversityID, &s.FirstName, &s.LastName, &s.Email,
		&s.Faculty, &s.Program, &s.EnrollmentStatus, &s.CurrentTerm,
		&s.AverageGrade, &s.ApprovedCredits, &s.TotalCredits,
		&s.LastActivityAt, &s.RiskTier, pq.Array(&s.RiskFactors),
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindByUniversity fetches students of one university, optionally
// narrowed by a single indexed dimension.
func (r *StudentRepository) FindByUniversity(universityID string, q *IndexedQuery, limit, offset int) ([]model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE university_id=$1`
	args := []interface{}{universityID}
	argPos := 2

	if q != nil {
		col, ok := indexedColumns[q.Dimension]
		if !ok {
			return nil, fmt.Errorf("unindexed dimension: %s", q.Dimension)
		}
		query += fmt.Sprintf(" AND %s=$%d", col, argPos)
		args = append(args, q.Value)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	students := []model.Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *s)
	}
	return students, rows.Err()
}

// GetByID fetches a student by ID within a university
func (r *StudentRepository) GetByID(universityID, id string) (*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE university_id=$1 AND id=$2`
	s, err := scanStudent(r.DB.QueryRow(query, universityID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewStudentNotFound(id)
		}
		return nil, err
	}
	return s, nil
}

// UpdateRiskProfile persists a recomputed risk tier and factor list.
// Risk fields are derived and only ever written through this method.
func (r *StudentRepository) UpdateRiskProfile(universityID, id, tier string, factors []string) error {
	query := `UPDATE students SET risk_tier=$1, risk_factors=$2, updated_at=NOW()
              WHERE university_id=$3 AND id=$4`
	res, err := r.DB.Exec(query, tier, pq.Array(factors), universityID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewStudentNotFound(id)
	}
	return nil
}

// Create inserts a student row (used by the seeder and import surface).
func (r *StudentRepository) Create(s *model.Student) error {
	s.CreatedAt = time.Now()
	query := `
        INSERT INTO students (id, university_id, first_name, last_name, email, faculty, program,
            enrollment_status, current_term, average_grade, approved_credits, total_credits,
            last_activity_at, risk_tier, risk_factors, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `
	_, err := r.DB.Exec(query,
		s.ID, s.UniversityID, s.FirstName, s.LastName, s.Email, s.Faculty, s.Program,
		s.EnrollmentStatus, s.CurrentTerm, s.AverageGrade, s.ApprovedCredits, s.TotalCredits,
		s.LastActivityAt, s.RiskTier, pq.Array(s.RiskFactors), s.CreatedAt,
	)
	return err
}

var _ StudentRepositoryInterface = (*StudentRepository)(nil)
