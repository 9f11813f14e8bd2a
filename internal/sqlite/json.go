// JSON record structure for contribution export files. Field names match
// the table columns so dumps stay readable next to the schema.
package sqlite

// contributionJSON represents one contribution line in an export file.
type contributionJSON struct {
	ID                   int64    `json:"id"`
	ShareToken           string   `json:"share_token"`
	ParentContributionID *int64   `json:"parent_contribution_id"`
	LineageRootID        int64    `json:"lineage_root_id"`
	ImagePrompt          *string  `json:"image_prompt"`
	ImageFilename        string   `json:"image_filename"`
	ImageDescription     string   `json:"image_description"`
	SurveyQuestion1      *string  `json:"survey_question_1"`
	SurveyQuestion2      *string  `json:"survey_question_2"`
	SurveyQuestion3      *string  `json:"survey_question_3"`
	SurveyAnswer1        string   `json:"survey_answer_1"`
	SurveyAnswer2        string   `json:"survey_answer_2"`
	SurveyAnswer3        string   `json:"survey_answer_3"`
	ContributorUserAgent string   `json:"contributor_user_agent"`
	Latitude             *float64 `json:"latitude"`
	Longitude            *float64 `json:"longitude"`
	CreatedAt            string   `json:"created_at"`
}

// valid reports whether the record carries the fields a row requires.
func (r *contributionJSON) valid() bool {
	if r.ID <= 0 || r.LineageRootID <= 0 || r.ShareToken == "" || r.ImageFilename == "" || r.CreatedAt == "" {
		return false
	}
	if r.ParentContributionID == nil && r.LineageRootID != r.ID {
		return false
	}
	return (r.Latitude == nil) == (r.Longitude == nil)
}
