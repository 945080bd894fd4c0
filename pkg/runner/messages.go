package runner

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys. The English text doubles as the key. Numbers are passed as
// pre-formatted strings so the printer does not apply locale digit
// grouping.
const (
	msgStdout        = "Standard Output:\n%s"
	msgStderr        = "Error Output:\n%s"
	msgReturnValue   = "Return Value: %s"
	msgExecError     = "Execution Error: %s: %s"
	msgNoOutput      = "Code executed successfully (No text output)."
	msgRuntimeError  = "Sandbox Runtime Error: %s"
	msgTimeout       = "Execution timed out after %s seconds."
	msgImages        = "[%s image(s) generated]"
	msgTruncated     = "\n...(Output truncated, remaining %s chars omitted)"
	msgConfigError   = "❌ Configuration error: %s"
	msgNoBackend     = "no sandbox backend is configured"
	msgEmptyCode     = "No code to execute."
	msgDuplicateCall = "[Duplicate call: this code already ran %s seconds ago in this session. Returning the previous result instead of executing it again.]"
	msgSystemNote    = "\n\n<SYSTEM_NOTE>\n1. Code execution COMPLETED. The output is provided above.\n2. DO NOT execute the code again.\n3. Please answer the user's question based on the output.\n</SYSTEM_NOTE>"
)

var catalog = map[language.Tag]map[string]string{
	language.English: {
		msgStdout:        msgStdout,
		msgStderr:        msgStderr,
		msgReturnValue:   msgReturnValue,
		msgExecError:     msgExecError,
		msgNoOutput:      msgNoOutput,
		msgRuntimeError:  msgRuntimeError,
		msgTimeout:       msgTimeout,
		msgImages:        msgImages,
		msgTruncated:     msgTruncated,
		msgConfigError:   msgConfigError,
		msgNoBackend:     msgNoBackend,
		msgEmptyCode:     msgEmptyCode,
		msgDuplicateCall: msgDuplicateCall,
		msgSystemNote:    msgSystemNote,
	},
	language.SimplifiedChinese: {
		msgStdout:        "标准输出:\n%s",
		msgStderr:        "错误输出:\n%s",
		msgReturnValue:   "返回值: %s",
		msgExecError:     "执行错误: %s: %s",
		msgNoOutput:      "代码执行成功（无文本输出）。",
		msgRuntimeError:  "沙箱运行时错误: %s",
		msgTimeout:       "代码执行超时（%s 秒）。",
		msgImages:        "[已生成 %s 张图片]",
		msgTruncated:     "\n...(输出已截断，省略剩余 %s 个字符)",
		msgConfigError:   "❌ 配置错误: %s",
		msgNoBackend:     "未配置沙箱后端",
		msgEmptyCode:     "没有可执行的代码。",
		msgDuplicateCall: "[重复调用：此代码已在 %s 秒前于本会话中执行，直接返回上次结果，不再重复执行。]",
		msgSystemNote:    "\n\n<SYSTEM_NOTE>\n1. 代码已执行完毕，输出结果见上文。\n2. 请勿再次执行该代码。\n3. 请根据输出结果回答用户的问题。\n</SYSTEM_NOTE>",
	},
}

func init() {
	for tag, msgs := range catalog {
		for key, text := range msgs {
			if err := message.SetString(tag, key, text); err != nil {
				panic("runner: register message: " + err.Error())
			}
		}
	}
}

// NewPrinter returns a message printer for locale ("en" or "zh", with
// region variants such as "zh-CN" accepted). Unknown locales fall back to
// English.
func NewPrinter(locale string) *message.Printer {
	return message.NewPrinter(matchLocale(locale))
}

var matcher = language.NewMatcher([]language.Tag{language.English, language.SimplifiedChinese})

func matchLocale(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return language.English
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No || idx == 0 {
		return language.English
	}
	return language.SimplifiedChinese
}
