// internal/service/template.go
package service

import (
	"strconv"
	"strings"

	"github.com/edusignal/retention-backend/internal/model"
)

// RenderTemplate substitutes {{token}} placeholders from data. Unresolved
// tokens are left verbatim rather than erased, so a typo in a template is
// visible in the delivered message instead of silently dropped.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	return result
}

// StudentVars builds the substitution map offered to campaign templates.
func StudentVars(s model.Student) map[string]string {
	return map[string]string{
		"first_name":    s.FirstName,
		"last_name":     s.LastName,
		"faculty":       s.Faculty,
		"program":       s.Program,
		"current_term":  strconv.Itoa(s.CurrentTerm),
		"average_grade": strconv.FormatFloat(s.AverageGrade, 'f', 2, 64),
		"risk_factors":  strings.Join(s.RiskFactors, ", "),
	}
}
