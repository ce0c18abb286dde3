package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/fixtures_backend/config"
	"bitbucket.org/mmdatafocus/fixtures_backend/models"
	"bitbucket.org/mmdatafocus/fixtures_backend/utils"
	"bitbucket.org/mmdatafocus/fixtures_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Recomputes fixture counters from the per-unit tables. Counters are
// derived state; this tool repairs drift after manual DB surgery or a
// partially restored backup.
func main() {
	customerID := flag.String("customer-id", "", "Required: customer id")
	fixtureID := flag.Int("fixture-id", 0, "Optional: single fixture id (default: every fixture of the customer)")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing fixtures and continue rebuilding others")
	flushCache := flag.Bool("flush-cache", false, "Flush the whole redis cache after rebuilding instead of per-fixture invalidation")
	flag.Parse()

	if strings.TrimSpace(*customerID) == "" {
		fmt.Fprintln(os.Stderr, "--customer-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	// Ops tool scopes explicitly; disable the ambient guard.
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)

	var fixtures []models.Fixture
	query := db.WithContext(ctx).Where("customer_id = ?", *customerID)
	if *fixtureID > 0 {
		query = query.Where("id = ?", *fixtureID)
	}
	if err := query.Find(&fixtures).Error; err != nil {
		fmt.Fprintf(os.Stderr, "listing fixtures failed: %v\n", err)
		os.Exit(1)
	}
	if len(fixtures) == 0 {
		fmt.Fprintln(os.Stderr, "no fixtures matched")
		os.Exit(1)
	}

	failed := 0
	for i := range fixtures {
		fixture := &fixtures[i]
		before := [2]int{fixture.InStockQty, fixture.DeployedQty}
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return workflow.ReconcileFixtureCounters(tx, *customerID, fixture)
		})
		if err != nil {
			failed++
			logger.WithFields(logrus.Fields{
				"customerId": *customerID,
				"fixtureId":  fixture.ID,
			}).Error("rebuild failed: " + err.Error())
			if !*continueOnError {
				os.Exit(1)
			}
			continue
		}
		models.InvalidateFixtureCache(*customerID, fixture.ID)
		if before[0] != fixture.InStockQty || before[1] != fixture.DeployedQty {
			logger.WithFields(logrus.Fields{
				"customerId":  *customerID,
				"fixtureId":   fixture.ID,
				"inStockQty":  fmt.Sprintf("%d -> %d", before[0], fixture.InStockQty),
				"deployedQty": fmt.Sprintf("%d -> %d", before[1], fixture.DeployedQty),
			}).Warn("counters drifted; repaired")
		}
	}

	if *flushCache {
		config.ConnectRedisWithRetry()
		if err := config.ClearRedis(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "cache flush failed: %v\n", err)
		}
	}

	fmt.Printf("rebuilt %d fixtures, %d failed\n", len(fixtures)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
