package mailer

import (
	"fmt"
	"strings"
)

const blankValue = "（記入なし）"

// ReflectionNotice holds what a guardian is told about a finished reflection.
type ReflectionNotice struct {
	GuardianName string
	TeacherName  string
	StudentName  string
	DocumentURL  string
	LessonDate   string
	Summary      string
	NextActions  string
}

// Subject returns the notification subject line.
func (n ReflectionNotice) Subject() string {
	return fmt.Sprintf("%sさんの授業振り返り（%s）", n.StudentName, orBlank(n.LessonDate))
}

// Body returns the notification text.
func (n ReflectionNotice) Body() string {
	guardian := strings.TrimSpace(n.GuardianName)
	if guardian == "" {
		guardian = "保護者"
	}
	lines := []string{
		guardian + " 様",
		"",
		"いつもお世話になっております。",
		n.TeacherName + "です。",
		"",
		n.StudentName + "さんの授業振り返りシートを作成しました。",
		"以下のリンクよりご確認ください: " + n.DocumentURL,
		"",
		"◆ 授業日: " + orBlank(n.LessonDate),
		"◆ 概要:",
		orBlank(n.Summary),
		"",
		"◆ 次回に向けて:",
		orBlank(n.NextActions),
		"",
		"ご不明な点がございましたらお気軽にご連絡ください。",
	}
	return strings.Join(lines, "\n")
}

func orBlank(v string) string {
	if strings.TrimSpace(v) == "" {
		return blankValue
	}
	return strings.TrimSpace(v)
}
