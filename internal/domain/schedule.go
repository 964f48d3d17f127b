package domain

import "time"

// EmailDeliveryConfig is attached to a Schedule when its report should be
// emailed on completion. Nil means "no delivery".
type EmailDeliveryConfig struct {
	Recipients []string
	CC         []string
	BCC        []string
	Subject    string
}

// Schedule binds a cron expression + timezone to a ReportDefinition.
//
// Invariants (§3):
//
//	I1: Active == true  =>  NextRunAt != nil
//	I2: NextRunAt, when set, is the cron expression's next fire at-or-after
//	    max(now, LastRunAt) interpreted in Timezone, stored in UTC.
//	I3: CronExpr passes validation before any persistence.
type Schedule struct {
	ID                 string
	TenantID           string
	ReportDefinitionID string
	Name               string
	CronExpr           string
	Timezone           string
	Active             bool
	NextRunAt          *time.Time
	LastRunAt          *time.Time
	EmailDelivery      *EmailDeliveryConfig
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
