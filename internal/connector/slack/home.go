package slackconn

import (
	"fmt"

	"github.com/slack-go/slack"
)

// HomeConfig is the content of the static App Home tab.
type HomeConfig struct {
	BotName        string
	FeatureChannel string
	TeamKey        string
}

// HomeView builds the App Home tab shown when a user opens the bot's home.
func HomeView(cfg HomeConfig) slack.HomeTabViewRequest {
	name := cfg.BotName
	if name == "" {
		name = "Jarrod"
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType,
			fmt.Sprintf("Hey, I'm %s 👋", name), true, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
			"I help turn product ideas into feature requests. Tell me what you need, "+
				"I'll ask a few quick questions, then file it with the product team.",
			false, false), nil, nil),
		slack.NewDividerBlock(),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*How to use me*\n• Post in #%s and I'll reply in a thread\n• Or just DM me here", cfg.FeatureChannel),
			false, false), nil, nil),
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("Requests land in the *%s* Linear triage queue. A digest goes out every morning.", cfg.TeamKey),
				false, false)),
	}

	return slack.HomeTabViewRequest{
		Type:   slack.VTHomeTab,
		Blocks: slack.Blocks{BlockSet: blocks},
	}
}
