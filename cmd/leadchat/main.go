package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	securityhttp "github.com/pitabwire/frame/security/interceptors/httptor"
	"github.com/pitabwire/frame/workerpool"

	lcconfig "github.com/leadchat/leadchat/config"
	chathandler "github.com/leadchat/leadchat/internal/chat/handler"
	widgetapi "github.com/leadchat/leadchat/internal/widget/api"
	"github.com/leadchat/leadchat/pkg/conversation"
	"github.com/leadchat/leadchat/pkg/events"
	"github.com/leadchat/leadchat/pkg/leads"
	"github.com/leadchat/leadchat/pkg/notify"
	"github.com/leadchat/leadchat/pkg/script"
	"github.com/leadchat/leadchat/pkg/urlvalidation"
	"github.com/leadchat/leadchat/pkg/webhook"
	webhookapi "github.com/leadchat/leadchat/pkg/webhook/api"
)

func main() {
	ctx := context.Background()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadWithOIDC[lcconfig.ServerConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	widget, err := lcconfig.LoadWidget(cfg.WidgetConfigPath)
	if err != nil {
		log.Fatalf("loading widget config: %v", err)
	}
	if err := widget.ApplyEnv(nil); err != nil {
		log.Fatalf("applying widget overrides: %v", err)
	}

	loader := script.NewLoader(cfg.WidgetConfigPath)
	if _, err := loader.Load(); err != nil {
		log.Fatalf("loading conversation: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("leadchat"),
		frame.WithRegisterServerOauth2Client(),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	if cfg.WatchWidgetConfig {
		go func() {
			if err := loader.WatchAndReload(ctx.Done()); err != nil {
				slog.ErrorContext(ctx, "conversation watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	pub := events.NewPublisher(srv.QueueManager(), "leadchat", eventRef)
	defer pub.Close()

	leadRepo := leads.NewRepository(
		srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"),
	)
	if err := leadRepo.Migrate(ctx); err != nil {
		log.Fatalf("migrating lead storage: %v", err)
	}

	// --- Lead notification ---
	email := &notify.Email{
		Sender: notify.NewSMTPSender(notify.SMTPConfig{
			Host:               widget.SMTP.Host,
			Port:               widget.SMTP.Port,
			User:               widget.SMTP.User,
			Password:           widget.SMTP.Password,
			InsecureSkipVerify: cfg.SMTPInsecureSkipVerify,
		}),
		Composer: notify.Composer{
			Company:   widget.Company.Name,
			FromName:  widget.SMTP.FromName,
			FromEmail: widget.SMTP.Sender(),
			To:        widget.Admin.Email,
			Location:  cfg.Location(),
		},
	}
	channels := notify.Multi{events.Notifier{Publisher: pub}}
	if widget.SMTP.Host != "" {
		channels = append(notify.Multi{email}, channels...)
	} else {
		slog.WarnContext(ctx, "smtp host not set, lead emails disabled")
	}
	notifier := &leads.RecordingNotifier{Repo: leadRepo, Next: channels}

	// --- Conversation ---
	hub := chathandler.NewHub()
	interp := conversation.NewInterpreter(hub, notifier,
		conversation.WithStepDelay(cfg.StepDelay()),
		conversation.WithGreetingDelay(cfg.GreetingDelay()),
		conversation.WithPublisher(pub),
		conversation.WithPool(pool),
	)
	svc := conversation.NewService(loader, interp,
		conversation.WithSessionTTL(cfg.SessionTTL()),
		conversation.WithReaperPool(pool),
	)
	defer svc.Shutdown()
	svc.StartReaper(ctx)

	// --- Webhooks ---
	var subscriber *webhook.Subscriber
	var dispatcher webhookapi.Dispatcher
	if cfg.LeadWebhookURL != "" {
		var validateOpts []urlvalidation.Option
		if cfg.WebhookAllowPrivate {
			validateOpts = append(validateOpts, urlvalidation.AllowPrivateIPs())
		}
		if err := urlvalidation.ValidateWebhookURL(cfg.LeadWebhookURL, validateOpts...); err != nil {
			log.Fatalf("invalid LEAD_WEBHOOK_URL: %v", err)
		}

		deliverer := webhook.NewDeliverer(leadRepo, webhook.DelivererConfig{
			MaxRetries:      cfg.WebhookMaxRetries,
			Timeout:         time.Duration(cfg.WebhookTimeoutSec) * time.Second,
			BackoffInitial:  time.Duration(cfg.WebhookBackoffSec) * time.Second,
			BackoffMax:      time.Duration(cfg.WebhookBackoffMax) * time.Second,
			CBFailThreshold: cfg.CBFailThreshold,
			CBResetTimeout:  time.Duration(cfg.CBResetTimeoutSec) * time.Second,
		}, pool, validateOpts...)
		subscriber = &webhook.Subscriber{
			Endpoints: []webhook.Endpoint{{
				ID:     "lead-webhook",
				URL:    cfg.LeadWebhookURL,
				Secret: cfg.LeadWebhookSecret,
			}},
			Deliverer: deliverer,
			Pool:      pool,
		}
		dispatcher = subscriber
	}

	// --- HTTP Mux ---
	mux := http.NewServeMux()

	chathandler.NewChatHandler(svc, hub, cfg.Origins()).RegisterRoutes(mux)

	widgetHdlr := widgetapi.NewHandler(widget,
		widgetapi.WithPublicDir(cfg.PublicDir),
		widgetapi.WithMailer(email),
		widgetapi.WithLeads(leadRepo),
		widgetapi.WithSessions(svc),
	)
	widgetHdlr.RegisterRoutes(mux)

	// Operator REST API behind frame's bearer authentication.
	opsMux := http.NewServeMux()
	widgetHdlr.RegisterOperatorRoutes(opsMux)
	webhookapi.NewHandler(leadRepo, dispatcher, "leadchat").RegisterRoutes(opsMux)
	widgetapi.MountOperator(mux, opsMux, operatorAuth(ctx, srv, cfg.AdminToken))

	if subscriber != nil {
		srv.Init(ctx,
			frame.WithRegisterSubscriber(eventRef+".webhooks", eventURL, subscriber),
			frame.WithHTTPHandler(mux),
		)
	} else {
		srv.Init(ctx, frame.WithHTTPHandler(mux))
	}

	slog.InfoContext(ctx, "lead chat ready",
		slog.String("company", widget.Company.Name),
		slog.Int("steps", loader.Current().StepCount()),
		slog.Bool("webhook", dispatcher != nil))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}

// operatorAuth returns frame's JWT middleware, or the static token guard
// when ADMIN_TOKEN is set for local development.
func operatorAuth(ctx context.Context, srv *frame.Service, devToken string) func(http.Handler) http.Handler {
	if devToken != "" {
		slog.WarnContext(ctx, "ADMIN_TOKEN set, operator routes accept the static development token")
		return widgetapi.TokenAuth(devToken)
	}
	authenticator := srv.SecurityManager().GetAuthenticator(ctx)
	return func(next http.Handler) http.Handler {
		return securityhttp.AuthenticationMiddleware(next, authenticator)
	}
}
