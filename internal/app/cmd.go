package app

import "strings"

// Command はサブコマンド（起動モード）。
type Command string

const (
	CommandServe   Command = "serve"
	CommandMigrate Command = "migrate"
	// distrolessイメージにはcurlが無いため、Dockerのヘルスチェックはこのサブコマンドで行う。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。大文字小文字は区別しない。
// 未指定・未知の値はserveとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[strings.ToLower(strings.TrimSpace(args[0]))]; ok {
		return cmd
	}
	return CommandServe
}
