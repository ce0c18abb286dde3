package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/fixtures_backend/config"
	"bitbucket.org/mmdatafocus/fixtures_backend/models"
	"bitbucket.org/mmdatafocus/fixtures_backend/workflow"
)

// End-to-end engine coverage against real MySQL + Redis containers.
// Skipped unless INTEGRATION_TESTS=1 (requires docker).

func TestEngineLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "fixtures_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	const customerId = "cust-test-1"
	actor := workflow.Actor{ID: 1, Name: "Test Operator"}

	mustFixture := func(name string, mode models.LifecycleMode) *models.Fixture {
		t.Helper()
		f := &models.Fixture{CustomerId: customerId, Name: name, LifecycleMode: mode}
		if err := db.Create(f).Error; err != nil {
			t.Fatalf("create fixture %s: %v", name, err)
		}
		return f
	}

	fetchFixture := func(id int) *models.Fixture {
		t.Helper()
		var f models.Fixture
		if err := db.Where("customer_id = ? AND id = ?", customerId, id).First(&f).Error; err != nil {
			t.Fatalf("fetch fixture %d: %v", id, err)
		}
		return &f
	}

	serialStatus := func(fixtureId int, s string) *models.SerialRecord {
		t.Helper()
		var rec models.SerialRecord
		if err := db.Where("customer_id = ? AND fixture_id = ? AND serial = ?", customerId, fixtureId, s).First(&rec).Error; err != nil {
			t.Fatalf("fetch serial %s: %v", s, err)
		}
		return &rec
	}

	ledgerCount := func(fixtureId int) int64 {
		t.Helper()
		var n int64
		if err := db.Model(&models.MaterialTransaction{}).
			Where("customer_id = ? AND fixture_id = ?", customerId, fixtureId).
			Count(&n).Error; err != nil {
			t.Fatalf("count ledger: %v", err)
		}
		return n
	}

	f1 := mustFixture("F1", models.LifecycleModeSerial)
	f2 := mustFixture("F2", models.LifecycleModeSerial)
	f3 := mustFixture("F3", models.LifecycleModeFixture)

	// Batch receipt expands the range and lands every unit in stock.
	txId, err := workflow.SubmitReceipt(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId:   f1.ID,
		RecordType:  models.RecordTypeBatch,
		SerialStart: "L1",
		SerialEnd:   "L010",
		OrderNo:     "PO-1001",
		SourceType:  "self_purchased",
	})
	if err != nil {
		t.Fatalf("batch receipt: %v", err)
	}
	if txId == 0 {
		t.Fatal("batch receipt returned zero tx id")
	}
	if got := fetchFixture(f1.ID); got.InStockQty != 10 {
		t.Fatalf("F1 in_stock_qty = %d, want 10", got.InStockQty)
	}
	var ledger models.MaterialTransaction
	if err := db.Where("customer_id = ? AND id = ?", customerId, txId).First(&ledger).Error; err != nil {
		t.Fatalf("fetch ledger row: %v", err)
	}
	if ledger.UnitCount != 10 || ledger.SerialStart != "L001" || ledger.SerialEnd != "L010" {
		t.Fatalf("ledger row wrong: count=%d start=%q end=%q", ledger.UnitCount, ledger.SerialStart, ledger.SerialEnd)
	}
	if rec := serialStatus(f1.ID, "L005"); rec.ExistenceStatus != models.ExistenceStatusInStock || rec.UsageStatus != models.UsageStatusIdle {
		t.Fatalf("L005 state wrong: %s/%s", rec.ExistenceStatus, rec.UsageStatus)
	}

	// Individual receipt deduplicates and pads to a common width.
	txId, err = workflow.SubmitReceipt(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId:  f2.ID,
		RecordType: models.RecordTypeIndividual,
		Serials:    []string{"A1", "A02", "A1", " A3 "},
	})
	if err != nil {
		t.Fatalf("individual receipt: %v", err)
	}
	if err := db.Where("customer_id = ? AND id = ?", customerId, txId).First(&ledger).Error; err != nil {
		t.Fatalf("fetch ledger row: %v", err)
	}
	if ledger.UnitCount != 3 {
		t.Fatalf("individual ledger unit_count = %d, want 3", ledger.UnitCount)
	}
	for _, s := range []string{"A01", "A02", "A03"} {
		serialStatus(f2.ID, s)
	}

	// A return containing one deployed serial fails whole and leaves no trace.
	if err := db.Model(&models.SerialRecord{}).
		Where("customer_id = ? AND fixture_id = ? AND serial = ?", customerId, f1.ID, "L003").
		Update("usage_status", models.UsageStatusDeployed).Error; err != nil {
		t.Fatalf("deploy L003: %v", err)
	}
	before := ledgerCount(f1.ID)
	_, err = workflow.SubmitReturn(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId:  f1.ID,
		RecordType: models.RecordTypeIndividual,
		Serials:    []string{"L001", "L003"},
	})
	if !errors.Is(err, workflow.ErrSerialNotReturnable) {
		t.Fatalf("expected ErrSerialNotReturnable, got %v", err)
	}
	if got := ledgerCount(f1.ID); got != before {
		t.Fatalf("failed return must not append a ledger row: %d -> %d", before, got)
	}
	if rec := serialStatus(f1.ID, "L001"); rec.ExistenceStatus != models.ExistenceStatusInStock {
		t.Fatalf("L001 must be untouched by the failed lot, got %s", rec.ExistenceStatus)
	}

	// Datecode round-trip with an over-return rejected at the bucket.
	if _, err := workflow.SubmitReceipt(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId: f3.ID, RecordType: models.RecordTypeDatecode, Datecode: "2410A", Quantity: 50,
	}); err != nil {
		t.Fatalf("datecode receipt: %v", err)
	}
	if _, err := workflow.SubmitReturn(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId: f3.ID, RecordType: models.RecordTypeDatecode, Datecode: "2410A", Quantity: 30,
	}); err != nil {
		t.Fatalf("datecode return: %v", err)
	}
	if got := fetchFixture(f3.ID); got.InStockQty != 20 {
		t.Fatalf("F3 in_stock_qty = %d, want 20", got.InStockQty)
	}
	_, err = workflow.SubmitReturn(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId: f3.ID, RecordType: models.RecordTypeDatecode, Datecode: "2410A", Quantity: 25,
	})
	if !errors.Is(err, workflow.ErrInsufficientDatecodeStock) {
		t.Fatalf("expected ErrInsufficientDatecodeStock, got %v", err)
	}
	if got := fetchFixture(f3.ID); got.InStockQty != 20 {
		t.Fatalf("failed over-return moved the bucket: %d", got.InStockQty)
	}

	// Re-receipt of a returned serial reuses the row.
	if _, err := workflow.SubmitReturn(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId: f1.ID, RecordType: models.RecordTypeIndividual, Serials: []string{"L005"},
	}); err != nil {
		t.Fatalf("return L005: %v", err)
	}
	if got := fetchFixture(f1.ID); got.InStockQty != 9 {
		t.Fatalf("F1 in_stock_qty = %d after return, want 9", got.InStockQty)
	}
	if _, err := workflow.SubmitReceipt(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId: f1.ID, RecordType: models.RecordTypeIndividual, Serials: []string{"L005"},
	}); err != nil {
		t.Fatalf("re-receipt L005: %v", err)
	}
	if rec := serialStatus(f1.ID, "L005"); rec.ExistenceStatus != models.ExistenceStatusInStock {
		t.Fatalf("L005 should be back in stock, got %s", rec.ExistenceStatus)
	}
	var l005Count int64
	if err := db.Model(&models.SerialRecord{}).
		Where("customer_id = ? AND fixture_id = ? AND serial = ?", customerId, f1.ID, "L005").
		Count(&l005Count).Error; err != nil || l005Count != 1 {
		t.Fatalf("re-receipt must reuse the serial row: count=%d err=%v", l005Count, err)
	}
	if got := fetchFixture(f1.ID); got.InStockQty != 10 {
		t.Fatalf("F1 in_stock_qty = %d after re-receipt, want 10", got.InStockQty)
	}

	// Mode conflict: a datecode lot on a serial fixture holding units.
	_, err = workflow.SubmitReceipt(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId: f1.ID, RecordType: models.RecordTypeDatecode, Datecode: "X", Quantity: 1,
	})
	if !errors.Is(err, workflow.ErrLifecycleModeMismatch) {
		t.Fatalf("expected ErrLifecycleModeMismatch, got %v", err)
	}

	// Concurrency: two receipts of the same fresh serial race; one wins.
	f4 := mustFixture("F4", models.LifecycleModeSerial)
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = workflow.SubmitReceipt(ctx, customerId, actor, &models.NewMaterialTransaction{
				FixtureId: f4.ID, RecordType: models.RecordTypeIndividual, Serials: []string{"Z9"},
			})
		}(i)
	}
	wg.Wait()
	okCount, conflictCount := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, workflow.ErrSerialAlreadyInStock):
			conflictCount++
		default:
			t.Fatalf("unexpected race outcome: %v", err)
		}
	}
	if okCount != 1 || conflictCount != 1 {
		t.Fatalf("expected one winner and one conflict, got %d/%d", okCount, conflictCount)
	}
	var z9Count int64
	if err := db.Model(&models.SerialRecord{}).
		Where("customer_id = ? AND fixture_id = ? AND serial = ?", customerId, f4.ID, "Z9").
		Count(&z9Count).Error; err != nil || z9Count != 1 {
		t.Fatalf("duplicate serial row created under race: count=%d err=%v", z9Count, err)
	}

	// Dedup key: replaying the same submission returns the recorded tx id.
	f5 := mustFixture("F5", models.LifecycleModeSerial)
	first, err := workflow.SubmitReceipt(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId: f5.ID, RecordType: models.RecordTypeIndividual, Serials: []string{"D1"}, DedupKey: "msg-777",
	})
	if err != nil {
		t.Fatalf("first keyed receipt: %v", err)
	}
	second, err := workflow.SubmitReceipt(ctx, customerId, actor, &models.NewMaterialTransaction{
		FixtureId: f5.ID, RecordType: models.RecordTypeIndividual, Serials: []string{"D1"}, DedupKey: "msg-777",
	})
	if err != nil {
		t.Fatalf("replayed keyed receipt: %v", err)
	}
	if first != second {
		t.Fatalf("replay should observe the original tx id: %d vs %d", first, second)
	}
	if got := ledgerCount(f5.ID); got != 1 {
		t.Fatalf("replay must not append a second ledger row, got %d", got)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("fixtures-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("fixtures-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=fixtures_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
