package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/immatt-0/lenbrary/internal/auth"
	"github.com/immatt-0/lenbrary/internal/config"
	"github.com/immatt-0/lenbrary/internal/handlers"
	"github.com/immatt-0/lenbrary/internal/mail"
	"github.com/immatt-0/lenbrary/internal/models"
	"github.com/immatt-0/lenbrary/internal/repositories"
	"github.com/immatt-0/lenbrary/internal/services"
	"github.com/immatt-0/lenbrary/internal/workers"
)

func main() {
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get generic DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	userRepo := repositories.NewUserRepository(db)
	studentRepo := repositories.NewStudentRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	borrowingRepo := repositories.NewBorrowingRepository(db)
	messageRepo := repositories.NewMessageRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	verificationRepo := repositories.NewVerificationRepository(db)
	invitationRepo := repositories.NewInvitationRepository(db)

	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)

	var mailer mail.Mailer
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	} else {
		log.Printf("[WARN] SMTP_HOST not set, emails are logged instead of sent")
		mailer = mail.LogMailer{}
	}

	accounts := services.NewAccountService(
		db, userRepo, studentRepo, verificationRepo, invitationRepo,
		mailer, tokens,
		cfg.BaseURL, cfg.AllowedEmailDomain,
		cfg.VerificationTTL, cfg.InvitationTTL,
	)
	catalog := services.NewCatalogService(db, bookRepo, notificationRepo)
	borrowing := services.NewBorrowingService(
		db, userRepo, studentRepo, bookRepo, borrowingRepo,
		messageRepo, notificationRepo,
		cfg.FinePerDay,
	)
	messaging := services.NewMessagingService(userRepo, borrowingRepo, messageRepo, notificationRepo)

	workers.NewOverdue(borrowing, time.Hour).Start()
	workers.NewCleanup(accounts, time.Hour).Start()

	router := gin.Default()
	handlers.RegisterRoutes(router, tokens, accounts, catalog, borrowing, messaging)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Starting server on %s", cfg.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
