package main

// ---------------------------------------------------------------------------
// cmd_completions.go — shell completion scripts
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"
	"strings"
)

func cmdCompletions(args []string) {
	if len(args) == 0 {
		cmdHelp("completions")
		os.Exit(0)
	}

	switch shell := strings.ToLower(args[0]); shell {
	case "bash":
		fmt.Print(bashCompletions())
	case "zsh":
		fmt.Print(zshCompletions())
	case "fish":
		fmt.Print(fishCompletions())
	default:
		errorf("unsupported shell %q, supported: bash, zsh, fish", shell)
	}
}

const globalFlags = "--config --base-url --api-key --format --verbose --help"

func bashCompletions() string {
	return `# netresponse bash completions
# Add to ~/.bashrc: source <(netresponse completions bash)

_netresponse_completions() {
    local cur prev commands
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"
    commands="` + strings.Join(commandNames(), " ") + `"

    case "${prev}" in
        netresponse|help)
            COMPREPLY=( $(compgen -W "${commands}" -- "${cur}") )
            return 0
            ;;
        config)
            COMPREPLY=( $(compgen -W "show validate init" -- "${cur}") )
            return 0
            ;;
        policy)
            COMPREPLY=( $(compgen -W "show update" -- "${cur}") )
            return 0
            ;;
        completions)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- "${cur}") )
            return 0
            ;;
        --severity)
            COMPREPLY=( $(compgen -W "low medium high critical" -- "${cur}") )
            return 0
            ;;
        --format)
            COMPREPLY=( $(compgen -W "table json yaml" -- "${cur}") )
            return 0
            ;;
        --log-level)
            COMPREPLY=( $(compgen -W "debug info warn error" -- "${cur}") )
            return 0
            ;;
        --config|submit|update)
            COMPREPLY=( $(compgen -f -- "${cur}") )
            return 0
            ;;
    esac

    if [[ "${cur}" == -* ]]; then
        COMPREPLY=( $(compgen -W "` + globalFlags + `" -- "${cur}") )
        return 0
    fi
}

complete -F _netresponse_completions netresponse
`
}

func zshCompletions() string {
	var b strings.Builder
	b.WriteString(`#compdef netresponse
# netresponse zsh completions
# Add to ~/.zshrc: source <(netresponse completions zsh)

_netresponse() {
    local -a commands
    commands=(
`)
	for _, c := range commands {
		fmt.Fprintf(&b, "        '%s:%s'\n", c.name, c.summary)
	}
	b.WriteString(`    )
    _arguments -C \
        '1: :->command' \
        '*::arg:->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                config) _values 'subcommand' show validate init ;;
                policy) _values 'subcommand' show update ;;
                completions) _values 'shell' bash zsh fish ;;
                submit) _files ;;
            esac
            ;;
    esac
}

compdef _netresponse netresponse
`)
	return b.String()
}

func fishCompletions() string {
	var b strings.Builder
	b.WriteString("# netresponse fish completions\n")
	b.WriteString("# Save to ~/.config/fish/completions/netresponse.fish\n\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "complete -c netresponse -n '__fish_use_subcommand' -a %s -d '%s'\n", c.name, c.summary)
	}
	b.WriteString("complete -c netresponse -n '__fish_seen_subcommand_from config' -a 'show validate init'\n")
	b.WriteString("complete -c netresponse -n '__fish_seen_subcommand_from policy' -a 'show update'\n")
	b.WriteString("complete -c netresponse -n '__fish_seen_subcommand_from completions' -a 'bash zsh fish'\n")
	b.WriteString("complete -c netresponse -l severity -xa 'low medium high critical'\n")
	b.WriteString("complete -c netresponse -l format -xa 'table json yaml'\n")
	b.WriteString("complete -c netresponse -l config -r\n")
	return b.String()
}
