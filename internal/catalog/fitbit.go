package catalog

// Every summary reports days_recorded as the number of distinct dates with an
// observation and calendar_days as the inclusive day count between the first
// and last recorded date, so calendar_days is never below days_recorded.

const sleepSQL = `SELECT participantidentifier,
    date_format(min(startdate), '%Y-%m-%d') AS start_date,
    date_format(max(enddate), '%Y-%m-%d') AS end_date,
    count(DISTINCT date_format(startdate, '%Y-%m-%d')) AS days_recorded,
    count(participantidentifier) AS sleep_sessions,
    date_diff('day', date(min(startdate)), date(max(enddate))) + 1 AS calendar_days
FROM fitbitsleeplogs
WHERE duration > 0
GROUP BY participantidentifier
ORDER BY start_date ASC`

const activitySQL = `SELECT participantidentifier,
    date_format(min(date), '%Y-%m-%d') AS start_date,
    date_format(max(date), '%Y-%m-%d') AS end_date,
    count(DISTINCT date) AS days_recorded,
    date_diff('day', date(min(date)), date(max(date))) + 1 AS calendar_days,
    avg(calories) AS avg_calories,
    avg(steps) AS avg_steps,
    avg(spo2avg) AS avg_spo2,
    avg(tempcore) AS avgtempcore,
    avg(tempskin) AS avgtempskin,
    avg(distance) AS avgdistance,
    avg(activitycalories) AS avg_actcal
FROM fitbitdailydata
WHERE steps > 0
GROUP BY participantidentifier`

const restingHRSQL = `SELECT participantidentifier,
    date_format(min(date), '%Y-%m-%d') AS start_date,
    date_format(max(date), '%Y-%m-%d') AS end_date,
    count(DISTINCT date) AS days_recorded,
    date_diff('day', date(min(date)), date(max(date))) + 1 AS calendar_days,
    avg(restingheartrate) AS average_resting_hr,
    min(restingheartrate) AS min_resting_hr,
    max(restingheartrate) AS max_resting_hr
FROM fitbitrestingheartrates
WHERE restingheartrate IS NOT NULL
GROUP BY participantidentifier`

const hrvSQL = `SELECT participantidentifier,
    date_format(min(date), '%Y-%m-%d') AS start_date,
    date_format(max(date), '%Y-%m-%d') AS end_date,
    count(DISTINCT date) AS days_recorded,
    date_diff('day', date(min(date)), date(max(date))) + 1 AS calendar_days,
    avg(hrvdailyrmssd) AS daily_avg_hrv,
    avg(hrvdeeprmssd) AS deep_avg_hrv,
    min(hrvdailyrmssd) AS daily_min_hrv,
    min(hrvdeeprmssd) AS deep_min_hrv,
    max(hrvdailyrmssd) AS daily_max_hrv,
    max(hrvdeeprmssd) AS deep_max_hrv
FROM fitbitdailydata
WHERE hrvdailyrmssd IS NOT NULL
GROUP BY participantidentifier`

// Sleep summarizes sleep logs per participant, skipping zero-duration sessions.
func Sleep() Query { return Query{Name: "sleep", SQL: sleepSQL} }

// Activity summarizes daily activity per participant, skipping zero-step days.
func Activity() Query { return Query{Name: "activity", SQL: activitySQL} }

// RestingHR summarizes resting heart rate per participant.
func RestingHR() Query { return Query{Name: "restinghr", SQL: restingHRSQL} }

// HRV summarizes heart-rate variability per participant.
func HRV() Query { return Query{Name: "hrv", SQL: hrvSQL} }

// FitbitSummaries returns the Fitbit summary reports in export order.
func FitbitSummaries() []Summary {
	return []Summary{
		{File: "activity", Query: Activity()},
		{File: "hrv", Query: HRV()},
		{File: "restinghr", Query: RestingHR()},
		{File: "sleep", Query: Sleep()},
	}
}
