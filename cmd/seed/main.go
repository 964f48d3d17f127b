// seed inserts a handful of tenants, report definitions, and schedules
// into the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/cron"
	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/infrastructure/postgres"
)

type tenantSpec struct {
	id   string
	name string
	tier domain.Tier
}

var tenants = []tenantSpec{
	{"tenant-acme", "Acme Corp", domain.TierStandard},
	{"tenant-globex", "Globex Inc", domain.TierPremium},
	{"tenant-initech", "Initech", domain.TierEnterprise},
}

type definitionSpec struct {
	id           string
	tenantID     string
	name         string
	templateRef  string
	format       domain.OutputFormat
	cacheTTLSecs int
}

var definitions = []definitionSpec{
	{"def-daily-sales", "tenant-acme", "Daily Sales Summary", "sales_summary", domain.FormatPDF, 3600},
	{"def-weekly-churn", "tenant-globex", "Weekly Churn Report", "churn_report", domain.FormatXLSX, 0},
	{"def-monthly-invoice", "tenant-initech", "Monthly Invoice Export", "invoice_export", domain.FormatCSV, 86400},
}

type scheduleSpec struct {
	definitionID string
	tenantID     string
	name         string
	cronExpr     string
	timezone     string
	recipients   []string
}

var schedules = []scheduleSpec{
	{"def-daily-sales", "tenant-acme", "Daily sales @ 6am ET", "0 6 * * *", "America/New_York", []string{"ops@acme.example"}},
	{"def-weekly-churn", "tenant-globex", "Weekly churn @ Monday 9am UTC", "0 9 * * 1", "UTC", []string{"growth@globex.example"}},
	{"def-monthly-invoice", "tenant-initech", "Monthly invoices @ 1st 8am UTC", "0 8 1 * *", "UTC", []string{"billing@initech.example"}},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	for _, t := range tenants {
		_, err := pool.Exec(ctx,
			`INSERT INTO tenants (id, name, tier, active) VALUES ($1, $2, $3, true)
			 ON CONFLICT (id) DO NOTHING`,
			t.id, t.name, string(t.tier),
		)
		if err != nil {
			log.Fatalf("seed tenant %s: %v", t.id, err)
		}
	}

	for _, d := range definitions {
		querySpec, err := json.Marshal(map[string]any{"seeded": true})
		if err != nil {
			log.Fatalf("marshal query spec: %v", err)
		}
		_, err = pool.Exec(ctx,
			`INSERT INTO report_definitions (id, tenant_id, name, query_spec, template_ref, output_format, cache_ttl_seconds)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO NOTHING`,
			d.id, d.tenantID, d.name, querySpec, d.templateRef, string(d.format), d.cacheTTLSecs,
		)
		if err != nil {
			log.Fatalf("seed report definition %s: %v", d.id, err)
		}
	}

	evaluator := cron.NewEvaluator()
	scheduleRepo := postgres.NewScheduleRepository(pool)

	var created int
	for _, s := range schedules {
		next, err := evaluator.Next(s.cronExpr, s.timezone, time.Now().UTC())
		if err != nil {
			log.Fatalf("compute next run for %s: %v", s.name, err)
		}

		sched := &domain.Schedule{
			TenantID:           s.tenantID,
			ReportDefinitionID: s.definitionID,
			Name:               s.name,
			CronExpr:           s.cronExpr,
			Timezone:           s.timezone,
			Active:             true,
			NextRunAt:          &next,
			EmailDelivery: &domain.EmailDeliveryConfig{
				Recipients: s.recipients,
				Subject:    s.name,
			},
		}

		if _, err := scheduleRepo.Create(ctx, sched); err != nil {
			if err == domain.ErrNameConflict {
				continue
			}
			log.Fatalf("seed schedule %s: %v", s.name, err)
		}
		created++
	}

	fmt.Println("Seed complete")
	fmt.Printf("  Tenants:     %d\n", len(tenants))
	fmt.Printf("  Definitions: %d\n", len(definitions))
	fmt.Printf("  Schedules:   %d created (skipped any name conflicts)\n", created)
}
