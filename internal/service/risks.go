package service

import "strings"

var riskRules = []struct {
	keywords []string
	label    string
}{
	{[]string{"阻塞", "卡住", "无法继续"}, "进度阻塞"},
	{[]string{"延期", "来不及"}, "可能延期"},
	{[]string{"线上故障"}, "线上故障"},
	{[]string{"需要支持"}, "需要协助"},
}

// DetectRisks returns the risk labels whose keywords appear in text, in rule
// order and without duplicates.
func DetectRisks(text string) []string {
	var risks []string
	for _, rule := range riskRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				risks = append(risks, rule.label)
				break
			}
		}
	}
	return risks
}
