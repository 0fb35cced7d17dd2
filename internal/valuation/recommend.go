package valuation

import (
	"github.com/ploxoy666/finanalyzer/internal/model"
	"github.com/ploxoy666/finanalyzer/pkg/config"
)

// Recommend 按上涨空间阈值给出评级
//
// 阈值来自配置 (model.valuation)，默认 >15% 为 BUY、<-10% 为 SELL；无市价时为 N/A。
func Recommend(upside *float64, cfg config.ValuationConfig) model.Recommendation {
	switch {
	case upside == nil:
		return model.RecommendationNA
	case *upside > cfg.BuyUpsideThreshold:
		return model.RecommendationBuy
	case *upside < cfg.SellUpsideThreshold:
		return model.RecommendationSell
	default:
		return model.RecommendationHold
	}
}
