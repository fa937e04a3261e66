package tutor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/p-n-ai/scai/internal/chat"
)

const (
	levelPrompt = `قبل أن نبدأ، أود أن أعرف مستوى معرفتك بهذا الموضوع لأتمكن من تقديم شرح يناسبك.
1. ليس لدي أي فكرة عن الموضوع
2. لدي بعض المعرفة ولكن أحتاج إلى توضيح أكثر
3. أفهم الموضوع جيداً وأرغب في التطبيق العملي
اختر الرقم الذي يعبر عن مستوي معرفتك لأحدد مستوى الشرح المناسب لك`

	goalChangePrompt = "أحسنت! لقد أكملت الهدف السابق وسننتقل الآن إلى هدف جديد:\n%s\n\nهل ترغب في تغيير مستوى الصعوبة؟ (المستوى الحالي: %s)"

	labelKeepLevel   = "الإبقاء على نفس المستوى"
	labelChangeLevel = "تغيير المستوى"
	labelExplain     = "شرح مفصل"
	labelNewQuestion = "سؤال جديد"

	errGenerateText = "عذراً، حدث خطأ في توليد السؤال. الرجاء المحاولة مرة أخرى."
	errAnswerText   = "عذراً، حدث خطأ في تقييم الإجابة. الرجاء المحاولة مرة أخرى."
	errExplainText  = "عذراً، حدث خطأ في طلب الشرح. الرجاء المحاولة مرة أخرى."
)

const (
	MinLevel = 1
	MaxLevel = 3
)

var levelAcks = map[int]string{
	1: "حسناً، سنبدأ من الأساسيات ونتدرج في الشرح خطوة بخطوة.",
	2: "جيد، سنراجع المفاهيم الأساسية ثم نتعمق في التفاصيل.",
	3: "ممتاز، سنركز على التطبيقات المتقدمة والمفاهيم العميقة.",
}

var levelNames = map[int]string{
	1: "مبتدئ",
	2: "متوسط",
	3: "متقدم",
}

// LevelName is the display name of a difficulty level.
func LevelName(level int) string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return fmt.Sprintf("المستوى %d", level)
}

// ParseLevel accepts "1", "2" or "3".
func ParseLevel(s string) (int, error) {
	level, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || level < MinLevel || level > MaxLevel {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
	return level, nil
}

func aiMessage(text string, buttons ...chat.Button) chat.Message {
	return chat.Message{ID: uuid.NewString(), Text: text, FromAI: true, Buttons: buttons}
}

func questionMessage(text string) chat.Message {
	return chat.Message{ID: uuid.NewString(), Text: text, FromAI: true, IsQuestion: true}
}

func learnerMessage(text string) chat.Message {
	return chat.Message{ID: uuid.NewString(), Text: text}
}

func levelPromptMessage() chat.Message {
	buttons := make([]chat.Button, 0, MaxLevel)
	for level := MinLevel; level <= MaxLevel; level++ {
		v := strconv.Itoa(level)
		buttons = append(buttons, chat.Button{Label: v, Action: chat.ActionLevel, Value: v})
	}
	return aiMessage(levelPrompt, buttons...)
}

func goalChangeMessage(goalTitle string, level int) chat.Message {
	return aiMessage(fmt.Sprintf(goalChangePrompt, goalTitle, LevelName(level)),
		chat.Button{Label: labelKeepLevel, Action: chat.ActionKeepLevel},
		chat.Button{Label: labelChangeLevel, Action: chat.ActionChangeLevel},
	)
}

func explanationMessage(text string) chat.Message {
	return aiMessage(text,
		chat.Button{Label: labelExplain, Action: chat.ActionExplain},
		chat.Button{Label: labelNewQuestion, Action: chat.ActionNextQuestion},
	)
}

func detailedExplanationMessage(text string) chat.Message {
	return aiMessage(text, chat.Button{Label: labelNewQuestion, Action: chat.ActionNextQuestion})
}

// nonBlank drops parts that are empty after trimming.
func nonBlank(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
