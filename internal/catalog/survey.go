package catalog

// Survey identifies one survey that has results. Names can change over the
// life of a study, so they come from surveyresults rather than the survey
// definitions.
type Survey struct {
	Name string
	Key  string
}

// SurveyColumns are the columns of every per-survey extract, in order.
var SurveyColumns = []string{
	"participantidentifier",
	"question",
	"startdate",
	"enddate",
	"resultidentifier",
	"answer",
}

const surveyDiscoverySQL = `SELECT surveyname, surveykey
FROM surveyresults
GROUP BY surveyname, surveykey
ORDER BY surveyname ASC`

// Question text always comes from the newest survey version, whichever
// version the participant answered. Only the first answer is exported.
const surveyExtractSQL = `WITH surveyresult AS (
    SELECT surveyresultkey
    FROM surveyresults
    WHERE surveykey = ?
)
SELECT surveyquestionresults.participantidentifier,
    (
        SELECT questiontext
        FROM surveydictionary
        WHERE resultidentifier = surveyquestionresults.resultidentifier
            AND surveykey = ?
            AND surveyversion = (
                SELECT max(surveyversion)
                FROM surveydictionary
                WHERE surveykey = ?
            )
    ) AS question,
    surveyquestionresults.startdate,
    surveyquestionresults.enddate,
    surveyquestionresults.resultidentifier,
    surveyquestionresults.answers[1] AS answer
FROM surveyquestionresults
INNER JOIN surveyresult ON surveyresult.surveyresultkey = surveyquestionresults.surveyresultkey`

// SurveyDiscovery lists (surveyname, surveykey) pairs ordered by name.
func SurveyDiscovery() Query {
	return Query{Name: "survey_discovery", SQL: surveyDiscoverySQL}
}

// SurveyExtract returns one row per answered question for the survey with key.
func SurveyExtract(key string) Query {
	lit := Literal(key)
	return Query{
		Name:   "survey_" + key,
		SQL:    surveyExtractSQL,
		Params: []string{lit, lit, lit},
	}
}
