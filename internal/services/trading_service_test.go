package services

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/pagination"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/reference"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/testutil"
)

var referencePattern = regexp.MustCompile(`^TXN-\d{8}-\d{5}$`)

func countTransactions(t *testing.T, l *ledger, portfolioID string) int64 {
	t.Helper()
	var n int64
	if err := l.db.Model(&models.InvestmentTransaction{}).Where("portfolio_id = ?", portfolioID).Count(&n).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return n
}

func TestBuy(t *testing.T) {
	t.Run("scenario_a_first_purchase", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "500000")

		txn := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "1.0")

		testutil.AssertDecimal(t, "gross", txn.GrossAmount, "500000")
		testutil.AssertDecimal(t, "fee", txn.PlatformFee, "5000")
		testutil.AssertDecimal(t, "net", txn.NetAmount, "505000")
		testutil.AssertDecimal(t, "unit price", txn.UnitPrice, "500000")
		if txn.Type != models.TransactionBuy || txn.Status != models.TransactionCompleted {
			t.Errorf("expected completed buy, got %s/%s", txn.Type, txn.Status)
		}
		if !referencePattern.MatchString(txn.Reference) {
			t.Errorf("unexpected reference format %q", txn.Reference)
		}
		if txn.HoldingID == nil {
			t.Fatal("expected holding id on buy")
		}

		holding := testutil.ReloadHolding(t, l.db, *txn.HoldingID)
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "1")
		testutil.AssertDecimal(t, "average cost", holding.AverageCostBasis, "500000")

		p := testutil.ReloadPortfolio(t, l.db, portfolio.ID)
		testutil.AssertDecimal(t, "invested", p.TotalInvested, "500000")
		testutil.AssertDecimal(t, "current value", p.TotalCurrentValue, "500000")
		if p.Version != 2 {
			t.Errorf("expected portfolio version 2, got %d", p.Version)
		}
	})

	t.Run("scenario_b_merges_into_existing_holding", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "500000")

		first := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "1.0")
		testutil.SetTestPrice(t, l.db, property.ID, "600000")
		second := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "1.0")

		if *first.HoldingID != *second.HoldingID {
			t.Fatal("second buy must merge into the same holding")
		}
		var holdings int64
		l.db.Model(&models.Holding{}).Where("portfolio_id = ?", portfolio.ID).Count(&holdings)
		if holdings != 1 {
			t.Errorf("expected 1 holding, got %d", holdings)
		}

		holding := testutil.ReloadHolding(t, l.db, *second.HoldingID)
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "2")
		testutil.AssertDecimal(t, "average cost", holding.AverageCostBasis, "550000")
		testutil.AssertDecimal(t, "total cost", holding.TotalCostBasis, "1100000")

		p := testutil.ReloadPortfolio(t, l.db, portfolio.ID)
		testutil.AssertDecimal(t, "invested", p.TotalInvested, "1100000")
	})

	t.Run("invalid_quantity", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")

		for _, qty := range []string{"0", "-1", "0.000000001"} {
			_, err := l.trading.Buy(t.Context(), callerOf(user), BuyCommand{
				PortfolioID: portfolio.ID, PropertyID: property.ID, Quantity: testutil.D(qty),
			})
			testutil.AssertAppError(t, err, "INVALID_QUANTITY")
		}
		if n := countTransactions(t, l, portfolio.ID); n != 0 {
			t.Errorf("expected no transactions, got %d", n)
		}
	})

	t.Run("not_owner", func(t *testing.T) {
		l := setupLedger(t)
		owner := testutil.CreateTestUser(t, l.db)
		admin := testutil.CreateTestUserWithRole(t, l.db, models.RoleAdmin)
		portfolio := testutil.CreateTestPortfolio(t, l.db, owner.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")

		_, err := l.trading.Buy(t.Context(), callerOf(admin), BuyCommand{
			PortfolioID: portfolio.ID, PropertyID: property.ID, Quantity: testutil.D("1"),
		})
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("portfolio_not_found", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		property := testutil.CreateTestProperty(t, l.db, "100")

		_, err := l.trading.Buy(t.Context(), callerOf(user), BuyCommand{
			PortfolioID: "00000000-0000-0000-0000-000000000000", PropertyID: property.ID, Quantity: testutil.D("1"),
		})
		testutil.AssertAppError(t, err, "PORTFOLIO_NOT_FOUND")
	})

	t.Run("price_unavailable", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property, err := l.properties.CreateProperty(t.Context(), CreatePropertyInput{Name: "Unpriced"})
		testutil.AssertNoError(t, err)

		_, err = l.trading.Buy(t.Context(), callerOf(user), BuyCommand{
			PortfolioID: portfolio.ID, PropertyID: property.ID, Quantity: testutil.D("1"),
		})
		testutil.AssertAppError(t, err, "PRICE_UNAVAILABLE")
	})

	t.Run("inactive_portfolio", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")
		l.db.Model(&models.Portfolio{}).Where("id = ?", portfolio.ID).Update("status", models.PortfolioSuspended)

		_, err := l.trading.Buy(t.Context(), callerOf(user), BuyCommand{
			PortfolioID: portfolio.ID, PropertyID: property.ID, Quantity: testutil.D("1"),
		})
		testutil.AssertAppError(t, err, "PORTFOLIO_NOT_ACTIVE")
	})

	t.Run("idempotent_replay", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "500000")
		cmd := BuyCommand{
			PortfolioID:    portfolio.ID,
			PropertyID:     property.ID,
			Quantity:       testutil.D("1.0"),
			IdempotencyKey: "buy-1",
		}

		first, err := l.trading.Buy(t.Context(), callerOf(user), cmd)
		testutil.AssertNoError(t, err)
		testutil.SetTestPrice(t, l.db, property.ID, "900000")
		second, err := l.trading.Buy(t.Context(), callerOf(user), cmd)
		testutil.AssertNoError(t, err)

		a, _ := json.Marshal(first)
		b, _ := json.Marshal(second)
		if string(a) != string(b) {
			t.Errorf("replay differs:\n%s\n%s", a, b)
		}
		if n := countTransactions(t, l, portfolio.ID); n != 1 {
			t.Errorf("expected 1 transaction, got %d", n)
		}
		holding := testutil.ReloadHolding(t, l.db, *first.HoldingID)
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "1")
		p := testutil.ReloadPortfolio(t, l.db, portfolio.ID)
		testutil.AssertDecimal(t, "invested", p.TotalInvested, "500000")
	})

	t.Run("idempotency_key_reused_for_other_operation", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")

		buy, err := l.trading.Buy(t.Context(), callerOf(user), BuyCommand{
			PortfolioID: portfolio.ID, PropertyID: property.ID, Quantity: testutil.D("2"), IdempotencyKey: "shared",
		})
		testutil.AssertNoError(t, err)

		_, err = l.trading.Sell(t.Context(), callerOf(user), SellCommand{
			PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("1"), IdempotencyKey: "shared",
		})
		testutil.AssertAppError(t, err, "IDEMPOTENCY_KEY_REUSED")

		holding := testutil.ReloadHolding(t, l.db, *buy.HoldingID)
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "2")
	})

	t.Run("reactivates_sold_holding", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")

		buy := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "1")
		_, err := l.trading.Sell(t.Context(), callerOf(user), SellCommand{
			PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("1"),
		})
		testutil.AssertNoError(t, err)

		again := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "3")
		if *again.HoldingID != *buy.HoldingID {
			t.Fatal("expected the emptied holding to be reused")
		}
		holding := testutil.ReloadHolding(t, l.db, *again.HoldingID)
		if holding.Status != models.HoldingActive {
			t.Errorf("expected active, got %s", holding.Status)
		}
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "3")
		testutil.AssertDecimal(t, "average cost", holding.AverageCostBasis, "100")
	})
}

func TestSell(t *testing.T) {
	t.Run("scenario_c_realizes_gain_at_average_cost", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "500000")

		buy := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "1.0")
		testutil.SetTestPrice(t, l.db, property.ID, "600000")
		l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "1.0")
		testutil.SetTestPrice(t, l.db, property.ID, "700000")

		sell, err := l.trading.Sell(t.Context(), callerOf(user), SellCommand{
			PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("1.0"),
		})
		testutil.AssertNoError(t, err)

		testutil.AssertDecimal(t, "gross", sell.GrossAmount, "700000")
		testutil.AssertDecimal(t, "fee", sell.PlatformFee, "7000")
		testutil.AssertDecimal(t, "net", sell.NetAmount, "693000")
		if !sell.CostBasis.Valid || !sell.RealizedGainLoss.Valid {
			t.Fatal("sell must record cost basis and realized gain")
		}
		testutil.AssertDecimal(t, "cost basis removed", sell.CostBasis.Decimal, "550000")
		testutil.AssertDecimal(t, "realized", sell.RealizedGainLoss.Decimal, "150000")

		holding := testutil.ReloadHolding(t, l.db, *buy.HoldingID)
		testutil.AssertDecimal(t, "remaining quantity", holding.Quantity, "1")
		testutil.AssertDecimal(t, "remaining average", holding.AverageCostBasis, "550000")

		p := testutil.ReloadPortfolio(t, l.db, portfolio.ID)
		testutil.AssertDecimal(t, "invested", p.TotalInvested, "550000")
		testutil.AssertDecimal(t, "current value", p.TotalCurrentValue, "400000")
		testutil.AssertDecimal(t, "realized gains", p.RealizedGains, "150000")
	})

	t.Run("insufficient_quantity_leaves_state_unchanged", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")
		buy := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "1.5")
		before := testutil.ReloadPortfolio(t, l.db, portfolio.ID)

		_, err := l.trading.Sell(t.Context(), callerOf(user), SellCommand{
			PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("1.50000001"),
		})
		testutil.AssertAppError(t, err, "INSUFFICIENT_QUANTITY")

		holding := testutil.ReloadHolding(t, l.db, *buy.HoldingID)
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "1.5")
		after := testutil.ReloadPortfolio(t, l.db, portfolio.ID)
		if after.Version != before.Version {
			t.Errorf("portfolio changed: version %d -> %d", before.Version, after.Version)
		}
		if n := countTransactions(t, l, portfolio.ID); n != 1 {
			t.Errorf("expected only the buy, got %d transactions", n)
		}
	})

	t.Run("holding_from_another_portfolio", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		first := testutil.CreateTestPortfolio(t, l.db, user.ID)
		second := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")
		buy := l.mustBuy(t, callerOf(user), first.ID, property.ID, "1")

		_, err := l.trading.Sell(t.Context(), callerOf(user), SellCommand{
			PortfolioID: second.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("1"),
		})
		testutil.AssertAppError(t, err, "HOLDING_PORTFOLIO_MISMATCH")
	})

	t.Run("selling_everything_marks_holding_sold", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")
		buy := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "2")

		_, err := l.trading.Sell(t.Context(), callerOf(user), SellCommand{
			PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("2"),
		})
		testutil.AssertNoError(t, err)

		holding := testutil.ReloadHolding(t, l.db, *buy.HoldingID)
		if holding.Status != models.HoldingSold {
			t.Errorf("expected sold, got %s", holding.Status)
		}
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "0")
		testutil.AssertDecimal(t, "total cost", holding.TotalCostBasis, "0")
		testutil.AssertDecimal(t, "current value", holding.CurrentValue, "0")
	})

	t.Run("idempotent_replay", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")
		buy := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "3")
		cmd := SellCommand{PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("1"), IdempotencyKey: "sell-1"}

		first, err := l.trading.Sell(t.Context(), callerOf(user), cmd)
		testutil.AssertNoError(t, err)
		second, err := l.trading.Sell(t.Context(), callerOf(user), cmd)
		testutil.AssertNoError(t, err)

		a, _ := json.Marshal(first)
		b, _ := json.Marshal(second)
		if string(a) != string(b) {
			t.Errorf("replay differs:\n%s\n%s", a, b)
		}
		holding := testutil.ReloadHolding(t, l.db, *buy.HoldingID)
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "2")
	})
}

func TestTransfer(t *testing.T) {
	t.Run("conserves_quantity_and_carries_cost", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		source := testutil.CreateTestPortfolio(t, l.db, user.ID)
		dest := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "500000")

		buy := l.mustBuy(t, callerOf(user), source.ID, property.ID, "1")
		testutil.SetTestPrice(t, l.db, property.ID, "600000")
		l.mustBuy(t, callerOf(user), source.ID, property.ID, "1")

		out, err := l.trading.Transfer(t.Context(), callerOf(user), TransferCommand{
			FromPortfolioID: source.ID,
			ToPortfolioID:   dest.ID,
			HoldingID:       *buy.HoldingID,
			Quantity:        testutil.D("0.5"),
		})
		testutil.AssertNoError(t, err)

		if out.Type != models.TransactionTransferOut {
			t.Errorf("expected transfer_out, got %s", out.Type)
		}
		if out.CounterpartyPortfolioID == nil || *out.CounterpartyPortfolioID != dest.ID {
			t.Error("expected destination as counterparty")
		}
		testutil.AssertDecimal(t, "fee", out.PlatformFee, "0")
		testutil.AssertDecimal(t, "cost moved", out.CostBasis.Decimal, "275000")

		src := testutil.ReloadHolding(t, l.db, *buy.HoldingID)
		var dst models.Holding
		if err := l.db.Where("portfolio_id = ? AND property_id = ?", dest.ID, property.ID).First(&dst).Error; err != nil {
			t.Fatalf("destination holding: %v", err)
		}
		if !src.Quantity.Add(dst.Quantity).Equal(testutil.D("2")) {
			t.Errorf("quantity not conserved: %s + %s", src.Quantity, dst.Quantity)
		}
		testutil.AssertDecimal(t, "destination average", dst.AverageCostBasis, "550000")
		testutil.AssertDecimal(t, "source average", src.AverageCostBasis, "550000")

		srcPortfolio := testutil.ReloadPortfolio(t, l.db, source.ID)
		dstPortfolio := testutil.ReloadPortfolio(t, l.db, dest.ID)
		testutil.AssertDecimal(t, "source invested", srcPortfolio.TotalInvested, "825000")
		testutil.AssertDecimal(t, "destination invested", dstPortfolio.TotalInvested, "275000")

		var in models.InvestmentTransaction
		if err := l.db.Where("portfolio_id = ? AND type = ?", dest.ID, models.TransactionTransferIn).First(&in).Error; err != nil {
			t.Fatalf("paired transfer_in: %v", err)
		}
		if in.Reference == out.Reference {
			t.Error("paired entries need distinct references")
		}
	})

	t.Run("full_transfer_marks_source_transferred", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		other := testutil.CreateTestUser(t, l.db)
		source := testutil.CreateTestPortfolio(t, l.db, user.ID)
		dest := testutil.CreateTestPortfolio(t, l.db, other.ID)
		property := testutil.CreateTestProperty(t, l.db, "250")
		buy := l.mustBuy(t, callerOf(user), source.ID, property.ID, "4")

		_, err := l.trading.Transfer(t.Context(), callerOf(user), TransferCommand{
			FromPortfolioID: source.ID, ToPortfolioID: dest.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("4"),
		})
		testutil.AssertNoError(t, err)

		src := testutil.ReloadHolding(t, l.db, *buy.HoldingID)
		if src.Status != models.HoldingTransferred {
			t.Errorf("expected transferred, got %s", src.Status)
		}
		testutil.AssertDecimal(t, "source quantity", src.Quantity, "0")
		testutil.AssertDecimal(t, "source invested", testutil.ReloadPortfolio(t, l.db, source.ID).TotalInvested, "0")
		testutil.AssertDecimal(t, "destination invested", testutil.ReloadPortfolio(t, l.db, dest.ID).TotalInvested, "1000")
	})

	t.Run("same_portfolio", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)

		_, err := l.trading.Transfer(t.Context(), callerOf(user), TransferCommand{
			FromPortfolioID: portfolio.ID, ToPortfolioID: portfolio.ID, HoldingID: "h", Quantity: testutil.D("1"),
		})
		testutil.AssertAppError(t, err, "SAME_PORTFOLIO_TRANSFER")
	})

	t.Run("source_not_owned", func(t *testing.T) {
		l := setupLedger(t)
		owner := testutil.CreateTestUser(t, l.db)
		thief := testutil.CreateTestUser(t, l.db)
		source := testutil.CreateTestPortfolio(t, l.db, owner.ID)
		dest := testutil.CreateTestPortfolio(t, l.db, thief.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")
		buy := l.mustBuy(t, callerOf(owner), source.ID, property.ID, "1")

		_, err := l.trading.Transfer(t.Context(), callerOf(thief), TransferCommand{
			FromPortfolioID: source.ID, ToPortfolioID: dest.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("1"),
		})
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("insufficient_quantity", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		source := testutil.CreateTestPortfolio(t, l.db, user.ID)
		dest := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")
		buy := l.mustBuy(t, callerOf(user), source.ID, property.ID, "1")

		_, err := l.trading.Transfer(t.Context(), callerOf(user), TransferCommand{
			FromPortfolioID: source.ID, ToPortfolioID: dest.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("2"),
		})
		testutil.AssertAppError(t, err, "INSUFFICIENT_QUANTITY")
		if n := countTransactions(t, l, dest.ID); n != 0 {
			t.Errorf("expected no destination entries, got %d", n)
		}
	})
}

func TestRecordDividend(t *testing.T) {
	t.Run("books_realized_gain", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "1000")
		buy := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "4")

		txn, err := l.trading.RecordDividend(t.Context(), callerOf(user), DividendCommand{
			PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Amount: testutil.D("120.50"),
		})
		testutil.AssertNoError(t, err)

		if txn.Type != models.TransactionDividend {
			t.Errorf("expected dividend, got %s", txn.Type)
		}
		testutil.AssertDecimal(t, "net", txn.NetAmount, "120.50")
		testutil.AssertDecimal(t, "fee", txn.PlatformFee, "0")

		p := testutil.ReloadPortfolio(t, l.db, portfolio.ID)
		testutil.AssertDecimal(t, "realized", p.RealizedGains, "120.50")
		testutil.AssertDecimal(t, "invested", p.TotalInvested, "4000")
		holding := testutil.ReloadHolding(t, l.db, *buy.HoldingID)
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "4")
	})

	t.Run("inactive_holding", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "1000")
		buy := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "1")
		_, err := l.trading.Sell(t.Context(), callerOf(user), SellCommand{
			PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("1"),
		})
		testutil.AssertNoError(t, err)

		_, err = l.trading.RecordDividend(t.Context(), callerOf(user), DividendCommand{
			PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Amount: testutil.D("10"),
		})
		testutil.AssertAppError(t, err, "HOLDING_NOT_ACTIVE")
	})

	t.Run("invalid_amount", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)

		for _, amount := range []string{"0", "-5", "1.001"} {
			_, err := l.trading.RecordDividend(t.Context(), callerOf(user), DividendCommand{
				PortfolioID: "p", HoldingID: "h", Amount: testutil.D(amount),
			})
			testutil.AssertAppError(t, err, "INVALID_INPUT")
		}
	})
}

func TestReverse(t *testing.T) {
	t.Run("admin_reverses_once", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		admin := testutil.CreateTestUserWithRole(t, l.db, models.RoleAdmin)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")
		buy := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "1")

		reversed, err := l.trading.Reverse(t.Context(), callerOf(admin), buy.ID)
		testutil.AssertNoError(t, err)
		if reversed.Status != models.TransactionReversed {
			t.Errorf("expected reversed, got %s", reversed.Status)
		}
		if reversed.ReversedBy == nil || *reversed.ReversedBy != admin.ID || reversed.ReversedAt == nil {
			t.Error("expected reversal to be stamped with admin and time")
		}

		_, err = l.trading.Reverse(t.Context(), callerOf(admin), buy.ID)
		testutil.AssertAppError(t, err, "TRANSACTION_NOT_REVERSIBLE")

		// Status-only: the holding keeps its units.
		holding := testutil.ReloadHolding(t, l.db, *buy.HoldingID)
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "1")
	})

	t.Run("non_admin", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		analyst := testutil.CreateTestUserWithRole(t, l.db, models.RoleAnalyst)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")
		buy := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "1")

		for _, caller := range []Caller{callerOf(user), callerOf(analyst)} {
			_, err := l.trading.Reverse(t.Context(), caller, buy.ID)
			testutil.AssertAppError(t, err, "FORBIDDEN")
		}
	})

	t.Run("not_found", func(t *testing.T) {
		l := setupLedger(t)
		admin := testutil.CreateTestUserWithRole(t, l.db, models.RoleAdmin)

		_, err := l.trading.Reverse(t.Context(), callerOf(admin), "00000000-0000-0000-0000-000000000000")
		testutil.AssertAppError(t, err, "TRANSACTION_NOT_FOUND")
	})
}

func TestGetHistory(t *testing.T) {
	l := setupLedger(t)
	owner := testutil.CreateTestUser(t, l.db)
	stranger := testutil.CreateTestUser(t, l.db)
	analyst := testutil.CreateTestUserWithRole(t, l.db, models.RoleAnalyst)
	portfolio := testutil.CreateTestPortfolio(t, l.db, owner.ID)
	property := testutil.CreateTestProperty(t, l.db, "100")

	buy := l.mustBuy(t, callerOf(owner), portfolio.ID, property.ID, "3")
	l.mustBuy(t, callerOf(owner), portfolio.ID, property.ID, "1")
	_, err := l.trading.Sell(t.Context(), callerOf(owner), SellCommand{
		PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("2"),
	})
	testutil.AssertNoError(t, err)

	t.Run("owner_sees_all", func(t *testing.T) {
		page, err := l.trading.GetHistory(t.Context(), callerOf(owner), portfolio.ID, pagination.PageRequest{}, HistoryFilter{})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 3 || len(page.Data) != 3 {
			t.Errorf("expected 3 transactions, got %d/%d", page.TotalItems, len(page.Data))
		}
	})

	t.Run("analyst_can_read", func(t *testing.T) {
		sells := models.TransactionSell
		page, err := l.trading.GetHistory(t.Context(), callerOf(analyst), portfolio.ID, pagination.PageRequest{}, HistoryFilter{Type: &sells})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 1 || page.Data[0].Type != models.TransactionSell {
			t.Errorf("expected the single sell, got %d items", page.TotalItems)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := l.trading.GetHistory(t.Context(), callerOf(owner), portfolio.ID, pagination.PageRequest{Page: 2, PageSize: 2}, HistoryFilter{})
		testutil.AssertNoError(t, err)
		if len(page.Data) != 1 || page.TotalPages != 2 {
			t.Errorf("expected 1 item on page 2 of 2, got %d items, %d pages", len(page.Data), page.TotalPages)
		}
	})

	t.Run("stranger_forbidden", func(t *testing.T) {
		_, err := l.trading.GetHistory(t.Context(), callerOf(stranger), portfolio.ID, pagination.PageRequest{}, HistoryFilter{})
		testutil.AssertAppError(t, err, "FORBIDDEN")

		_, err = l.trading.GetTransaction(t.Context(), callerOf(stranger), buy.ID)
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("get_transaction", func(t *testing.T) {
		got, err := l.trading.GetTransaction(t.Context(), callerOf(owner), buy.ID)
		testutil.AssertNoError(t, err)
		if got.Reference != buy.Reference {
			t.Errorf("expected %s, got %s", buy.Reference, got.Reference)
		}
	})
}

func TestConcurrentTrading(t *testing.T) {
	t.Run("parallel_buys_all_apply", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "1000")

		const n = 10
		var wg sync.WaitGroup
		refs := make([]string, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				txn, err := l.trading.Buy(t.Context(), callerOf(user), BuyCommand{
					PortfolioID: portfolio.ID, PropertyID: property.ID, Quantity: testutil.D("0.5"),
				})
				errs[i] = err
				if err == nil {
					refs[i] = txn.Reference
				}
			}(i)
		}
		wg.Wait()

		seen := map[string]bool{}
		for i := 0; i < n; i++ {
			testutil.AssertNoError(t, errs[i])
			if seen[refs[i]] {
				t.Errorf("duplicate reference %s", refs[i])
			}
			seen[refs[i]] = true
		}

		var holding models.Holding
		l.db.Where("portfolio_id = ?", portfolio.ID).First(&holding)
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "5")
		p := testutil.ReloadPortfolio(t, l.db, portfolio.ID)
		testutil.AssertDecimal(t, "invested", p.TotalInvested, "5000")
		if p.Version != n+1 {
			t.Errorf("expected version %d, got %d", n+1, p.Version)
		}
	})

	t.Run("parallel_sells_never_oversell", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "1000")
		buy := l.mustBuy(t, callerOf(user), portfolio.ID, property.ID, "5")

		const n = 10
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = l.trading.Sell(t.Context(), callerOf(user), SellCommand{
					PortfolioID: portfolio.ID, HoldingID: *buy.HoldingID, Quantity: testutil.D("1"),
				})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			testutil.AssertAppError(t, err, "INSUFFICIENT_QUANTITY")
		}
		if succeeded != 5 {
			t.Errorf("expected exactly 5 sells to succeed, got %d", succeeded)
		}
		holding := testutil.ReloadHolding(t, l.db, *buy.HoldingID)
		testutil.AssertDecimal(t, "quantity", holding.Quantity, "0")
		if holding.Status != models.HoldingSold {
			t.Errorf("expected sold, got %s", holding.Status)
		}
	})

	t.Run("parallel_retries_with_one_key_apply_once", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "1000")

		const n = 8
		var wg sync.WaitGroup
		ids := make([]string, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				txn, err := l.trading.Buy(t.Context(), callerOf(user), BuyCommand{
					PortfolioID: portfolio.ID, PropertyID: property.ID, Quantity: testutil.D("1"), IdempotencyKey: "same-key",
				})
				errs[i] = err
				if err == nil {
					ids[i] = txn.ID
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			testutil.AssertNoError(t, errs[i])
			if ids[i] != ids[0] {
				t.Errorf("replay %d returned %s, want %s", i, ids[i], ids[0])
			}
		}
		if c := countTransactions(t, l, portfolio.ID); c != 1 {
			t.Errorf("expected 1 transaction, got %d", c)
		}
		testutil.AssertDecimal(t, "invested", testutil.ReloadPortfolio(t, l.db, portfolio.ID).TotalInvested, "1000")
	})

	t.Run("opposite_transfers_do_not_deadlock", func(t *testing.T) {
		l := setupLedger(t)
		user := testutil.CreateTestUser(t, l.db)
		a := testutil.CreateTestPortfolio(t, l.db, user.ID)
		b := testutil.CreateTestPortfolio(t, l.db, user.ID)
		property := testutil.CreateTestProperty(t, l.db, "100")
		holdA := l.mustBuy(t, callerOf(user), a.ID, property.ID, "10")
		holdB := l.mustBuy(t, callerOf(user), b.ID, property.ID, "10")

		var wg sync.WaitGroup
		errs := make([]error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				cmd := TransferCommand{FromPortfolioID: a.ID, ToPortfolioID: b.ID, HoldingID: *holdA.HoldingID, Quantity: testutil.D("1")}
				if i%2 == 1 {
					cmd = TransferCommand{FromPortfolioID: b.ID, ToPortfolioID: a.ID, HoldingID: *holdB.HoldingID, Quantity: testutil.D("1")}
				}
				_, errs[i] = l.trading.Transfer(t.Context(), callerOf(user), cmd)
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			testutil.AssertNoError(t, err)
		}
		qa := testutil.ReloadHolding(t, l.db, *holdA.HoldingID).Quantity
		qb := testutil.ReloadHolding(t, l.db, *holdB.HoldingID).Quantity
		testutil.AssertDecimal(t, "total quantity", qa.Add(qb), "20")
		testutil.AssertDecimal(t, "a quantity", qa, "10")
	})
}

// commitBeforePricing runs commit the first time a price is requested, which
// is after the idempotency lookup and before the ledger transaction opens.
type commitBeforePricing struct {
	PriceProvider
	commit func()
	once   sync.Once
}

func (p *commitBeforePricing) GetCurrentPrice(ctx context.Context, propertyID string) (decimal.Decimal, error) {
	p.once.Do(p.commit)
	return p.PriceProvider.GetCurrentPrice(ctx, propertyID)
}

func TestBuy_KeyCommittedByAnotherWriter(t *testing.T) {
	l := setupLedger(t)
	user := testutil.CreateTestUser(t, l.db)
	portfolio := testutil.CreateTestPortfolio(t, l.db, user.ID)
	property := testutil.CreateTestProperty(t, l.db, "500000")

	key := "k1"
	winner := &models.InvestmentTransaction{
		Reference:      "TXN-OTHER-00001",
		Type:           models.TransactionBuy,
		PortfolioID:    portfolio.ID,
		PropertyID:     property.ID,
		UserID:         user.ID,
		Quantity:       testutil.D("1"),
		UnitPrice:      testutil.D("500000"),
		GrossAmount:    testutil.D("500000"),
		PlatformFee:    testutil.D("5000"),
		NetAmount:      testutil.D("505000"),
		Status:         models.TransactionCompleted,
		IdempotencyKey: &key,
	}
	prices := &commitBeforePricing{
		PriceProvider: l.properties,
		commit: func() {
			testutil.AssertNoError(t, l.db.Create(winner).Error)
		},
	}
	svc := NewTradingService(l.db, l.ctrl, prices, reference.NewGenerator(0), 5*time.Second)

	txn, err := svc.Buy(t.Context(), callerOf(user), BuyCommand{
		PortfolioID:    portfolio.ID,
		PropertyID:     property.ID,
		Quantity:       testutil.D("1"),
		IdempotencyKey: key,
	})
	testutil.AssertNoError(t, err)

	if txn.ID != winner.ID || txn.Reference != "TXN-OTHER-00001" {
		t.Errorf("expected the committed transaction to be replayed, got %s (%s)", txn.ID, txn.Reference)
	}
	if n := countTransactions(t, l, portfolio.ID); n != 1 {
		t.Errorf("expected 1 transaction, got %d", n)
	}

	var holdings int64
	testutil.AssertNoError(t, l.db.Model(&models.Holding{}).Where("portfolio_id = ?", portfolio.ID).Count(&holdings).Error)
	if holdings != 0 {
		t.Errorf("expected losing buy to leave no holding, got %d", holdings)
	}

	p := testutil.ReloadPortfolio(t, l.db, portfolio.ID)
	testutil.AssertDecimal(t, "invested", p.TotalInvested, "0")
	testutil.AssertDecimal(t, "current value", p.TotalCurrentValue, "0")
	if p.Version != portfolio.Version {
		t.Errorf("expected portfolio version %d to be unchanged, got %d", portfolio.Version, p.Version)
	}
}
