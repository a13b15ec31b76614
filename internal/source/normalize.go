// internal/source/normalize.go
package source

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/models"
)

// rawPostingSchema is the shape a posting must satisfy before it is
// admitted into the store. Postings missing the natural key or the text
// fields the matcher depends on are skipped, not repaired.
const rawPostingSchema = `{
	"type": "object",
	"properties": {
		"id":          {"type": "string", "minLength": 1},
		"title":       {"type": "string", "minLength": 1},
		"description": {"type": "string", "minLength": 1},
		"redirect_url": {"type": "string"}
	},
	"required": ["id", "title", "description"]
}`

var rawPostingSchemaLoader = gojsonschema.NewStringLoader(rawPostingSchema)

var internshipKeywords = []string{"intern", "internship", "co-op", "coop"}
var remoteKeywords = []string{"remote", "work from home", "wfh", "telecommute"}
var seniorKeywords = []string{"senior", "lead", "principal"}
var executiveKeywords = []string{"director", "vp", "chief", "head of"}

// Normalize converts one raw posting into a canonical record. It returns a
// RECORD_VALIDATION_FAILED error when the posting cannot be admitted.
func Normalize(raw *RawPosting) (*models.JobRecord, error) {
	doc := gojsonschema.NewGoLoader(map[string]interface{}{
		"id":           raw.ID,
		"title":        raw.Title,
		"description":  raw.Description,
		"redirect_url": raw.RedirectURL,
	})
	result, err := gojsonschema.Validate(rawPostingSchemaLoader, doc)
	if err != nil {
		return nil, apperrors.NewRecordValidationFailedError(err.Error())
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, apperrors.NewRecordValidationFailedError(strings.Join(details, "; "))
	}

	titleLower := strings.ToLower(raw.Title)
	descLower := strings.ToLower(raw.Description)

	isInternship := containsAny(titleLower, internshipKeywords) || containsAny(descLower, internshipKeywords)
	isRemote := containsAny(titleLower, remoteKeywords) || containsAny(descLower, remoteKeywords)

	record := &models.JobRecord{
		ExternalID:         raw.ID,
		Title:              raw.Title,
		Description:        raw.Description,
		CompanyDisplayName: raw.Company.DisplayName,
		Location:           raw.Location.DisplayName,
		LocationStructured: parseLocation(raw),
		EmploymentType:     classifyEmploymentType(raw, isInternship),
		JobLevel:           classifyJobLevel(titleLower, isInternship),
		SalaryMin:          raw.SalaryMin,
		SalaryMax:          raw.SalaryMax,
		SalaryCurrency:     "USD",
		Category:           raw.Category.Label,
		RedirectURL:        raw.RedirectURL,
		Status:             models.StatusActive,
		IsInternship:       isInternship,
		IsRemote:           isRemote,
	}
	return record, nil
}

// parseLocation maps the source's area hierarchy (country, state, ...,
// city) onto the structured location.
func parseLocation(raw *RawPosting) *models.StructuredLocation {
	loc := &models.StructuredLocation{
		Lat: raw.Location.Latitude,
		Lon: raw.Location.Longitude,
	}
	area := raw.Location.Area
	if len(area) > 0 {
		loc.Country = area[0]
	}
	if len(area) > 1 {
		loc.State = area[1]
	}
	if len(area) > 2 {
		loc.City = area[len(area)-1]
	}
	return loc
}

func classifyEmploymentType(raw *RawPosting, isInternship bool) models.EmploymentType {
	if isInternship {
		return models.EmploymentInternship
	}
	contractType := strings.ToLower(raw.ContractType)
	contractTime := strings.ToLower(raw.ContractTime)
	switch {
	case strings.Contains(contractTime, "part") || strings.Contains(contractType, "part_time"):
		return models.EmploymentPartTime
	case strings.Contains(contractType, "contract") || strings.Contains(contractType, "temporary"):
		return models.EmploymentContractor
	default:
		return models.EmploymentFullTime
	}
}

func classifyJobLevel(titleLower string, isInternship bool) models.JobLevel {
	switch {
	case isInternship || strings.Contains(titleLower, "entry") || strings.Contains(titleLower, "junior"):
		return models.LevelEntry
	case containsAny(titleLower, seniorKeywords):
		return models.LevelSenior
	case containsAny(titleLower, executiveKeywords):
		return models.LevelExecutive
	default:
		return models.LevelMid
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
