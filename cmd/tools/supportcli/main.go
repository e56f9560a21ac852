package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/zhouzirui/z-helpdesk/backend/internal/config"
	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
	"github.com/zhouzirui/z-helpdesk/backend/internal/observability"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/escalation"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/responder"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/session"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/transport"
	"github.com/zhouzirui/z-helpdesk/backend/internal/store"
)

const helpText = `命令:
  /open            打开聊天窗口（清零未读）
  /close           关闭聊天窗口
  /up [id]         对客服回复点赞，默认最近一条
  /down [id]       对客服回复点踩，默认最近一条
  /resend [id]     重发失败的消息，默认最近一条
  /history         打印当前会话记录
  /quit            退出
其他输入作为消息发送。`

func main() {
	name := flag.String("name", "", "客户姓名")
	email := flag.String("email", "", "客户邮箱")
	noLive := flag.Bool("no-live", false, "不建立 websocket 实时通道，只使用 HTTP 应答")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	logger := observability.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if envErr != nil {
		logger.Debug("no .env file loaded, using system environment only", "error", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeKV := openStore(cfg.Client, logger)
	defer closeKV()

	identity := session.NewIdentity(kv, logger)
	// 先解析会话，实时通道的地址依赖会话 ID。
	sess, err := identity.GetOrCreate(ctx)
	if err != nil && !errors.Is(err, session.ErrStorageUnavailable) {
		logger.Error("failed to resolve session", "error", err)
		os.Exit(1)
	}

	client := responder.NewClient(cfg.Client.APIBaseURL, responder.WithLogger(logger))

	deps := conversation.Deps{
		Identity:  identity,
		Responder: client,
		Feedback:  client,
		Policy:    &escalation.Policy{},
		Logger:    logger,
	}
	if !*noLive {
		deps.Channel = transport.New(channelOptions(cfg.Client, sess.ID), logger)
	}

	ctrl, err := conversation.New(ctx, deps, conversation.Config{
		MaxMessageLength: cfg.Client.MaxMessageLength,
		ResponderTimeout: cfg.Client.ResponderTimeout,
		CustomerName:     *name,
		CustomerEmail:    *email,
	})
	if err != nil {
		logger.Error("failed to start conversation", "error", err)
		os.Exit(1)
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range ctrl.Events() {
			printEvent(ev)
		}
	}()

	fmt.Printf("会话 %s 已就绪，输入 /help 查看命令。\n", ctrl.Session().ID)
	if err := ctrl.Open(); err != nil {
		logger.Warn("open failed", "error", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !handleLine(ctrl, line) {
				break loop
			}
		}
	}

	ctrl.Shutdown()
	<-printed
}

// handleLine 执行一行输入，返回 false 表示退出。
func handleLine(ctrl *conversation.Controller, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		if _, err := ctrl.SendMessage(line); err != nil {
			fmt.Printf("! 发送失败: %v\n", err)
		}
		return true
	}

	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	var err error
	switch fields[0] {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Println(helpText)
	case "/open":
		err = ctrl.Open()
	case "/close":
		err = ctrl.Close()
	case "/up", "/down":
		polarity := chat.Positive
		if fields[0] == "/down" {
			polarity = chat.Negative
		}
		if arg == "" {
			arg = lastMessageID(ctrl.Snapshot(), func(m chat.Message) bool { return m.Direction == chat.Inbound })
		}
		err = ctrl.SendFeedback(arg, polarity)
	case "/resend":
		if arg == "" {
			arg = lastMessageID(ctrl.Snapshot(), func(m chat.Message) bool { return m.DeliveryState == chat.Failed })
		}
		_, err = ctrl.Resend(arg)
	case "/history":
		for _, m := range ctrl.Snapshot().Messages {
			printMessage("  ", m)
		}
	default:
		fmt.Printf("! 未知命令 %s，输入 /help 查看命令\n", fields[0])
	}

	if err != nil {
		fmt.Printf("! %v\n", err)
	}
	return true
}

func lastMessageID(snap chat.Snapshot, match func(chat.Message) bool) string {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if match(snap.Messages[i]) {
			return snap.Messages[i].ID
		}
	}
	return ""
}

func printEvent(ev conversation.Event) {
	switch ev.Type {
	case conversation.EventMessage:
		printMessage("", ev.Message)
	case conversation.EventMessageUpdated:
		if ev.Message.DeliveryState == chat.Failed {
			fmt.Printf("  (消息 %s 发送失败，可用 /resend 重发)\n", ev.Message.ID)
		}
	case conversation.EventTyping:
		if ev.Typing {
			fmt.Println("  客服正在输入...")
		}
	case conversation.EventUnread:
		if ev.Unread > 0 {
			fmt.Printf("  [未读 %d]\n", ev.Unread)
		}
	case conversation.EventSuggestions:
		fmt.Printf("  建议: %s\n", strings.Join(ev.Suggestions, " | "))
	case conversation.EventError:
		fmt.Printf("! %v\n", ev.Err)
	case conversation.EventChannelState:
		fmt.Printf("  [实时通道: %s]\n", ev.ChannelState)
	case conversation.EventDegraded:
		fmt.Println("! 会话存储不可用，重启后聊天记录将丢失")
	}
}

func printMessage(indent string, m chat.Message) {
	who := "你"
	switch m.Direction {
	case chat.Inbound:
		who = "客服"
	case chat.System:
		who = "系统"
	}
	fmt.Printf("%s%s [%s] %s: %s\n", indent, m.Timestamp.Local().Format("15:04:05"), m.ID, who, m.Text)
}

func channelOptions(cfg config.ClientConfig, sessionID string) transport.Options {
	opts := transport.DefaultOptions(strings.TrimRight(cfg.LiveURL, "/") + "/" + sessionID)
	opts.QueueDepth = cfg.SendQueueDepth
	opts.BaseDelay = cfg.ReconnectBaseDelay
	opts.MaxDelay = cfg.ReconnectMaxDelay
	opts.Jitter = cfg.ReconnectJitter
	return opts
}

// openStore 打开会话存储。失败时返回 nil，会话随之降级为进程内临时会话。
func openStore(cfg config.ClientConfig, logger *slog.Logger) (store.KV, func()) {
	t := store.Type(cfg.SessionStore)
	opts := []store.Option{store.WithPath(cfg.StorePath())}

	switch t {
	case store.TypeRedis:
		opts = append(opts, store.WithRedisClient(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})))
	case store.TypeFile, store.TypeSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath()), 0o755); err != nil {
			logger.Warn("failed to create session store directory", "error", err)
		}
	}

	kv, err := store.New(t, opts...)
	if err != nil {
		logger.Warn("failed to open session store", "type", t, "error", err)
		return nil, func() {}
	}
	return kv, func() {
		if err := kv.Close(); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	}
}
