package conversation

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	promptGreeting        = "お電話ありがとうございます。お米のご注文ですね。銘柄と量を教えてください。"
	promptCollect         = "銘柄（例: コシヒカリ）と量（例: 5kg）を教えてください。"
	promptGreetingReply   = "はい、聞こえています。お米の銘柄と量を教えてください。"
	promptBrandOnly       = "銘柄を教えてください。"
	promptBrandDeclined   = "承知いたしました。銘柄を教えてください。"
	promptNotFound        = "該当商品が見つかりませんでした。申し訳ございません。失礼いたします。"
	promptOutOfStock      = "申し訳ございません、在庫がありませんでした。別の商品をお探しします。"
	promptStockAvailable  = "在庫を確認しました。ご用意可能です。"
	promptStockError      = "在庫確認に失敗しました。申し訳ございません。失礼いたします。"
	promptMissingProduct  = "商品情報が取得できませんでした。失礼いたします。"
	promptPriceError      = "価格情報の取得に失敗しました。申し訳ございません。失礼いたします。"
	promptPriceYesNo      = "価格案内後は「はい」または「いいえ」でお答えください。"
	promptAddressAsk      = "配送先のご住所を教えてください。"
	promptAddressRetry    = "承知いたしました。配送先のご住所をもう一度お願いします。"
	promptDeliveryCancel  = "配送日の変更はできません。キャンセルしますか？（はい／いいえ）"
	promptDeliveryMissing = "配送先情報が取得できませんでした。失礼いたします。"
	promptDeliveryError   = "配送日の取得に失敗しました。申し訳ございません。失礼いたします。"
	promptOrderMissing    = "注文内容が取得できませんでした。失礼いたします。"
	promptPhoneAsk        = "確認のためお電話番号をもう一度お知らせいただけますか？"
	promptOrderYesNo      = "ご注文を確定する場合は「はい」、取りやめる場合は「いいえ」とお答えください。"
	promptClosingSuccess  = "ご注文ありがとうございました。失礼いたします。"
	promptClosingCancel   = "承知いたしました。失礼いたします。"
	promptClosingError    = "申し訳ございません。エラーが発生しました。失礼いたします。"
	promptSilence         = "もしもし、お聞きになっていますか？"
	promptNoHear          = "申し訳ございません、もう一度おっしゃっていただけますか？"
)

func formatNumber(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func promptBrandConfirm(brand string) string { return fmt.Sprintf("「%s」でよろしいですか？", brand) }

func promptWeightOptions(weights []int) string {
	parts := make([]string, len(weights))
	for i, w := range weights {
		parts[i] = fmt.Sprintf("%dkg", w)
	}
	return strings.Join(parts, "、") + "があります。この中からお選びください。"
}

func promptWeightNeedsBrand(w float64) string {
	return fmt.Sprintf("量は%skgですね。銘柄は何をご希望ですか？", formatNumber(w))
}

func promptSuggestion(brand string, w float64) string {
	return fmt.Sprintf("かしこまりました。%s%skgですね。こちらで登録しました。", brand, formatNumber(w))
}

func promptStockQuantity(q int) string { return fmt.Sprintf("在庫を確認しました。現在%d点ございます。", q) }

func priceText(price float64, currency string) string {
	if currency == "JPY" {
		return formatNumber(price) + "円"
	}
	return formatNumber(price) + " " + currency
}

func promptPrice(text string) string { return fmt.Sprintf("価格は%sです。よろしいですか？", text) }

func promptAddressConfirm(addr string) string {
	return fmt.Sprintf("配送先は%sでよろしいでしょうか？", addr)
}

func promptDelivery(date string) string { return fmt.Sprintf("配送は%sの予定です。よろしいですか？", date) }

func promptOrderSummary(name, price, date string) string {
	return fmt.Sprintf("ご注文内容は、商品:%s、価格:%s、配送:%sです。確定でよろしいですか？", name, price, date)
}
