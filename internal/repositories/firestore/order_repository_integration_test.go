//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/lepax/api/internal/domain"
	pconfig "github.com/lepax/api/internal/platform/config"
	pfirestore "github.com/lepax/api/internal/platform/firestore"
	"github.com/lepax/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestOrderRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "orders-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	orders := []domain.Order{
		{
			ID:     "order-1",
			UserID: "user-a",
			Lines: []domain.OrderLine{
				{ProductID: 1, Name: "Canvas Backpack", UnitPriceMinor: 4999, Quantity: 1},
			},
			PaymentMethod: "card",
			Currency:      "EUR",
			TotalMinor:    4999,
			CreatedAt:     base,
		},
		{
			ID:     "order-2",
			UserID: "user-a",
			Lines: []domain.OrderLine{
				{ProductID: 2, Name: "Leather Tote", UnitPriceMinor: 12900, Quantity: 2},
			},
			PaymentMethod: "paypal",
			Currency:      "EUR",
			TotalMinor:    25800,
			CreatedAt:     base.Add(time.Hour),
		},
		{
			ID:     "order-3",
			UserID: "user-b",
			Lines: []domain.OrderLine{
				{ProductID: 3, Name: "Wool Scarf", UnitPriceMinor: 2500, Quantity: 1},
			},
			PaymentMethod: "card",
			Currency:      "EUR",
			TotalMinor:    2500,
			CreatedAt:     base.Add(2 * time.Hour),
		},
	}

	for _, order := range orders {
		if err := repo.Insert(ctx, order); err != nil {
			t.Fatalf("insert %s: %v", order.ID, err)
		}
	}

	// Inserting a duplicate order id must fail with a conflict.
	err = repo.Insert(ctx, orders[0])
	if err == nil {
		t.Fatal("expected conflict on duplicate insert")
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict error, got %T %v", err, err)
	}

	found, err := repo.FindByID(ctx, "order-2")
	if err != nil {
		t.Fatalf("find order-2: %v", err)
	}
	if found.TotalMinor != 25800 || found.PaymentMethod != "paypal" {
		t.Fatalf("unexpected order %+v", found)
	}
	if len(found.Lines) != 1 || found.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected order lines %+v", found.Lines)
	}

	byUser, err := repo.ListByUser(ctx, "user-a", 10)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(byUser) != 2 {
		t.Fatalf("expected 2 orders for user-a, got %d", len(byUser))
	}
	if byUser[0].ID != "order-2" || byUser[1].ID != "order-1" {
		t.Fatalf("expected newest-first ordering, got %s then %s", byUser[0].ID, byUser[1].ID)
	}

	all, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(all))
	}
	if all[0].ID != "order-3" {
		t.Fatalf("expected order-3 first, got %s", all[0].ID)
	}

	_, err = repo.FindByID(ctx, "order-missing")
	if err == nil {
		t.Fatal("expected not found error")
	}
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not-found error, got %T %v", err, err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
