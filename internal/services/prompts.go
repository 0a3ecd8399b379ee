package services

import (
	"fmt"
	"strings"
)

const (
	// FallbackMessage 生成之前的步骤失败时返回给用户的提示
	FallbackMessage = "系統忙碌中，請稍後再試。"
	// ApologyMessage 生成服务失败时的固定回覆
	ApologyMessage = "抱歉，目前無法產生回答，請稍後再試一次。"
	// EmptyQuestionMessage 问题为空
	EmptyQuestionMessage = "請輸入問題"

	noReferenceNotice = "（本次沒有找到相關的醫療文獻，請依一般醫學常識謹慎回答，並在必要時建議就醫，不要捏造文獻出處。）"
)

// formatHistory 每条记录一行 "role: content"
func formatHistory(history []Turn) string {
	lines := make([]string, 0, len(history))
	for _, t := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return strings.Join(lines, "\n")
}

func rewritePrompt(question string, history []Turn) string {
	var b strings.Builder
	b.WriteString("你負責整理對話。請依照下方的對話紀錄，把使用者最後一個問題改寫成不需要上下文也能看懂的完整問題。\n")
	b.WriteString("只補上被省略的主詞或代名詞所指的對象，不要回答問題，也不要改變原本的意思，只輸出改寫後的問題。\n\n")
	b.WriteString("== 對話紀錄 ==\n")
	b.WriteString(formatHistory(history))
	b.WriteString("\n\n== 最後的問題 ==\n")
	b.WriteString(question)
	b.WriteString("\n\n== 改寫結果 ==\n")
	return b.String()
}

func answerPrompt(question string, history []Turn, contextText string) string {
	var b strings.Builder
	b.WriteString("你是一位在台灣執業、說話親切的醫師。請參考先前的對話與下方的醫療文獻，回答患者最新的問題。\n")
	b.WriteString("回答時先直接給結論，再說明原因與建議；語氣自然，不要出現「根據文獻」之類的字眼。\n\n")

	b.WriteString("== 先前對話 ==\n")
	if len(history) == 0 {
		b.WriteString("（無）")
	} else {
		b.WriteString(formatHistory(history))
	}

	b.WriteString("\n\n== 醫療文獻 ==\n")
	if contextText == "" {
		b.WriteString(noReferenceNotice)
	} else {
		b.WriteString(contextText)
	}

	b.WriteString("\n\n== 患者的問題 ==\n")
	b.WriteString(question)
	b.WriteString("\n\n醫師的回答（繁體中文）：\n")
	return b.String()
}
