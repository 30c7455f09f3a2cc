package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/boomware/crosslist/pkg/models"
)

// Average sold price gets 60% of the weight when comps exist; the vision
// model's retail estimate fills the rest.
const (
	marketWeight   = 0.6
	estimateWeight = 0.4
)

var conditionMultipliers = map[models.ConditionState]float64{
	models.ConditionNew:     1.00,
	models.ConditionLikeNew: 0.85,
	models.ConditionGood:    0.70,
	models.ConditionFair:    0.50,
	models.ConditionPoor:    0.30,
}

const defaultConditionMultiplier = 0.70

var urgencyMultipliers = map[models.Urgency]float64{
	models.UrgencyFastSale:  0.85,
	models.UrgencyBalanced:  1.00,
	models.UrgencyMaxProfit: 1.10,
}

var acceptRatios = map[models.Urgency]float64{
	models.UrgencyFastSale:  0.75,
	models.UrgencyBalanced:  0.85,
	models.UrgencyMaxProfit: 0.90,
}

// declineBelow sits below minAcceptable so lowball offers are auto-declined
// while near-misses stay negotiable.
const declineRatio = 0.75

type scheduledDrop struct {
	afterDays int
	dropPct   float64
}

var dropSchedules = map[models.Urgency][]scheduledDrop{
	models.UrgencyFastSale:  {{3, 0.05}, {7, 0.10}, {14, 0.15}},
	models.UrgencyBalanced:  {{7, 0.05}, {14, 0.10}, {21, 0.15}},
	models.UrgencyMaxProfit: {{14, 0.05}, {30, 0.10}, {45, 0.15}},
}

type feeSchedule struct {
	Pct      float64
	PerOrder float64
}

var platformFees = map[models.Platform]feeSchedule{
	models.PlatformEbay:     {0.1315, 0.30},
	models.PlatformFacebook: {0.05, 0.40},
	models.PlatformMercari:  {0.129, 0.50}, // 10% selling + 2.9% payment processing
	models.PlatformPoshmark: {0.20, 0},
	models.PlatformOfferUp:  {0.129, 0},
}

var platformShipping = map[models.Platform]float64{
	models.PlatformEbay:     8.00,
	models.PlatformFacebook: 0,
	models.PlatformMercari:  7.99,
	models.PlatformPoshmark: 7.97,
	models.PlatformOfferUp:  8.00,
}

var collectibleKeywords = []string{
	"vintage", "rare", "limited", "collectible", "antique",
	"retro", "discontinued", "signed", "first edition",
}

// PriceOptimizerService turns an analysis plus market comps into a pricing
// strategy: list price, offer thresholds, markdown schedule, auction
// recommendation and fee-adjusted per-platform prices.
type PriceOptimizerService struct {
	cache  *CacheService
	logger *logrus.Logger
}

func NewPriceOptimizerService(cache *CacheService, logger *logrus.Logger) *PriceOptimizerService {
	return &PriceOptimizerService{cache: cache, logger: logger}
}

func (s *PriceOptimizerService) Optimize(ctx context.Context, analysis *models.ProductAnalysis, market *models.MarketData, opts models.PricingOptions) (*models.PricingStrategy, error) {
	urgency := opts.Urgency
	if urgency == "" {
		urgency = models.UrgencyBalanced
	}

	base := s.basePrice(analysis, market)

	condMult, ok := conditionMultipliers[analysis.Condition.State]
	if !ok {
		condMult = defaultConditionMultiplier
	}
	listPrice := round2(base * condMult * urgencyMultipliers[urgency])

	minAcceptable := round2(listPrice * acceptRatios[urgency])
	if opts.MinCost > 0 && minAcceptable < opts.MinCost {
		minAcceptable = round2(opts.MinCost)
	}

	strategy := &models.PricingStrategy{
		ListPrice:     listPrice,
		MinAcceptable: minAcceptable,
		DeclineBelow:  round2(minAcceptable * declineRatio),
		DropSchedule:  buildDropSchedule(urgency, listPrice, minAcceptable),
	}

	signals := auctionSignals(analysis, market)
	strategy.AuctionSignals = signals
	if len(signals) >= 3 {
		strategy.UseAuction = true
		duration := 7
		if market != nil && market.AverageDaysToSell < 7 {
			duration = 3
		}
		strategy.Auction = &models.AuctionConfig{
			StartPrice:   round2(minAcceptable * 0.5),
			ReservePrice: minAcceptable,
			DurationDays: duration,
		}
	}

	strategy.PlatformPricing = make(map[models.Platform]models.PlatformPrice, len(models.AllPlatforms))
	for _, platform := range models.AllPlatforms {
		strategy.PlatformPricing[platform] = platformPrice(platform, listPrice)
	}

	s.logger.WithFields(logrus.Fields{
		"brand":          analysis.Product.Brand,
		"name":           analysis.Product.Name,
		"list_price":     strategy.ListPrice,
		"min_acceptable": strategy.MinAcceptable,
		"use_auction":    strategy.UseAuction,
		"urgency":        urgency,
	}).Info("Pricing strategy computed")

	return strategy, nil
}

// CompetitiveStance names how aggressively to undercut the market.
type CompetitiveStance string

const (
	StanceAggressive CompetitiveStance = "aggressive"
	StanceMarket     CompetitiveStance = "market"
	StancePremium    CompetitiveStance = "premium"
)

// CompetitivePrice positions against the market: undercut the cheapest
// active listing, match the average sold price, or sit just under the
// highest sale. Sold-price comps fill in when the research provider did
// not report the aggregate fields.
func (s *PriceOptimizerService) CompetitivePrice(market *models.MarketData, stance CompetitiveStance) (float64, error) {
	if market == nil || (len(market.SoldPrices) == 0 && market.LowestActive <= 0 && market.HighestSold <= 0) {
		return 0, fmt.Errorf("no market prices available")
	}

	var lowest, highest, sum float64
	if len(market.SoldPrices) > 0 {
		lowest, highest = market.SoldPrices[0], market.SoldPrices[0]
		for _, p := range market.SoldPrices {
			if p < lowest {
				lowest = p
			}
			if p > highest {
				highest = p
			}
			sum += p
		}
	}

	switch stance {
	case StanceAggressive:
		// Beating the cheapest live listing wins the buy box; sold comps
		// only matter here when nothing is currently listed.
		if market.LowestActive > 0 {
			return round2(market.LowestActive * 0.95), nil
		}
		return round2(lowest * 0.95), nil
	case StancePremium:
		if market.HighestSold > 0 {
			return round2(market.HighestSold * 0.90), nil
		}
		return round2(highest * 0.90), nil
	default:
		if market.AverageSoldPrice > 0 {
			return round2(market.AverageSoldPrice), nil
		}
		if len(market.SoldPrices) == 0 {
			return 0, fmt.Errorf("no sold comps for market stance")
		}
		return round2(sum / float64(len(market.SoldPrices))), nil
	}
}

// PriceReport renders a strategy as plain text for operator review.
func (s *PriceOptimizerService) PriceReport(analysis *models.ProductAnalysis, strategy *models.PricingStrategy) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Pricing report: %s %s (%s)\n", analysis.Product.Brand, analysis.Product.Name, analysis.Condition.State)
	fmt.Fprintf(&b, "  List price:      $%.2f\n", strategy.ListPrice)
	fmt.Fprintf(&b, "  Accept offers >= $%.2f\n", strategy.MinAcceptable)
	fmt.Fprintf(&b, "  Decline below:   $%.2f\n", strategy.DeclineBelow)

	if len(strategy.DropSchedule) > 0 {
		b.WriteString("  Markdown schedule:\n")
		for _, d := range strategy.DropSchedule {
			fmt.Fprintf(&b, "    day %d: -%.0f%% (floor $%.2f)\n", d.AfterDays, d.DropPct, d.FloorPrice)
		}
	}

	if strategy.UseAuction && strategy.Auction != nil {
		fmt.Fprintf(&b, "  Auction recommended (%s): start $%.2f, reserve $%.2f, %d days\n",
			strings.Join(strategy.AuctionSignals, ", "),
			strategy.Auction.StartPrice, strategy.Auction.ReservePrice, strategy.Auction.DurationDays)
	}

	b.WriteString("  Per-platform:\n")
	for _, platform := range models.AllPlatforms {
		p, ok := strategy.PlatformPricing[platform]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "    %-9s list $%.2f, fees $%.2f, ship $%.2f, net $%.2f\n",
			platform, p.ListPrice, p.Fees, p.Shipping, p.NetProceeds)
	}

	return b.String()
}

// basePrice blends the average sold price with the vision estimate. The
// median stands in when the provider reported no average, and with no
// usable comps at all the estimate midpoint carries the price alone.
func (s *PriceOptimizerService) basePrice(analysis *models.ProductAnalysis, market *models.MarketData) float64 {
	estimate := analysis.EstimatedValue.Midpoint()
	if market == nil {
		return estimate
	}
	anchor := market.AverageSoldPrice
	if anchor <= 0 {
		anchor = market.MedianSoldPrice
	}
	if anchor <= 0 {
		return estimate
	}
	return marketWeight*anchor + estimateWeight*estimate
}

func buildDropSchedule(urgency models.Urgency, listPrice, floor float64) []models.PriceDrop {
	schedule := dropSchedules[urgency]
	drops := make([]models.PriceDrop, 0, len(schedule))
	for _, d := range schedule {
		dropped := round2(listPrice * (1 - d.dropPct))
		if dropped < floor {
			dropped = floor
		}
		drops = append(drops, models.PriceDrop{
			AfterDays:  d.afterDays,
			DropPct:    d.dropPct,
			FloorPrice: dropped,
		})
	}
	return drops
}

// auctionSignals collects the indicators that demand is strong or hard to
// price; three or more recommend an auction format.
func auctionSignals(analysis *models.ProductAnalysis, market *models.MarketData) []string {
	var signals []string

	if market != nil {
		if market.RecentSales > 5 {
			signals = append(signals, "high sales velocity")
		}
		if market.AverageDaysToSell > 0 && market.AverageDaysToSell < 7 {
			signals = append(signals, "sells quickly")
		}
		if market.TotalActive > 0 && market.TotalActive < 10 {
			signals = append(signals, "low competition")
		}
		if cv := priceVariability(market.SoldPrices); cv > 0.3 {
			signals = append(signals, "high price variability")
		}
	}

	haystack := strings.ToLower(analysis.Product.Name + " " + strings.Join(analysis.Product.Features, " "))
	for _, kw := range collectibleKeywords {
		if strings.Contains(haystack, kw) {
			signals = append(signals, "collectible keyword: "+kw)
			break
		}
	}

	if len(analysis.MarketPositioning.UniqueSellingPoints) > 3 {
		signals = append(signals, "many unique selling points")
	}

	return signals
}

// priceVariability is the coefficient of variation of recent sold prices.
func priceVariability(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(prices, nil)
	if mean <= 0 {
		return 0
	}
	return std / mean
}

// NetProfit returns what the seller keeps from a gross sale price on the
// given platform after selling fees and, under free shipping, the platform's
// flat shipping estimate.
func (s *PriceOptimizerService) NetProfit(gross float64, platform models.Platform, shipping models.ShippingConfig) float64 {
	fees := platformFees[platform]
	net := gross - gross*fees.Pct - fees.PerOrder
	if shipping.FreeShipping {
		net -= platformShipping[platform]
	}
	return round2(net)
}

// platformPrice grosses the target up so net proceeds after the platform's
// fees stay level with the base list price.
func platformPrice(platform models.Platform, target float64) models.PlatformPrice {
	fees := platformFees[platform]
	gross := round2((target + fees.PerOrder) / (1 - fees.Pct))
	totalFees := round2(gross*fees.Pct + fees.PerOrder)
	return models.PlatformPrice{
		ListPrice:   gross,
		Fees:        totalFees,
		Shipping:    platformShipping[platform],
		NetProceeds: round2(gross - totalFees),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
