package config

import (
	"Pasarku-Backend/internal/api/handlers"
	"Pasarku-Backend/internal/api/routes"
	"Pasarku-Backend/internal/middleware"
	"Pasarku-Backend/internal/utils"
	"Pasarku-Backend/internal/utils/mailing"
	"Pasarku-Backend/internal/utils/storage"
	"Pasarku-Backend/pkg/jwt"
	"Pasarku-Backend/pkg/user"
	"Pasarku-Backend/pkg/wallet"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

func NewApp(db *gorm.DB) (*fiber.App, error) {
	utils.InitValidator()
	app := fiber.New(fiber.Config{
		EnablePrintRoutes: true,
	})
	middlewares := middleware.NewMiddleware()
	validator := utils.Validate

	// setting up logging and limiter
	err := os.MkdirAll("./logs", os.ModePerm)
	if err != nil {
		log.Fatalf("error creating logs directory: %v", err)
	}
	file, err := os.OpenFile(
		"./logs/app.log",
		os.O_RDWR|os.O_CREATE|os.O_APPEND,
		0666,
	)
	if err != nil {
		log.Fatalf("error opening file: %v", err)
	}
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Asia/Jakarta",
		Output:     file,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Second,
	}))

	// utils
	s3 := storage.NewAwsS3()

	// Repository
	userRepository := user.NewUserRepository(db)
	walletRepository := wallet.NewWalletRepository(db)

	// Service
	jwtService := jwt.NewJWTService()
	userService := user.NewUserService(userRepository, jwtService)
	walletService := wallet.NewWalletService(walletRepository, wallet.NewNoopOrderWriter())
	expiryService := wallet.NewExpiryService(walletRepository, s3, mailing.SendOpsAlert)

	// Handler
	userHandler := handlers.NewUserHandler(userService, validator)
	walletHandler := handlers.NewWalletHandler(walletService, validator)
	walletAdminHandler := handlers.NewWalletAdminHandler(walletService, expiryService, validator)

	// routes
	routesConfig := routes.Config{
		App:                app,
		UserHandler:        userHandler,
		WalletHandler:      walletHandler,
		WalletAdminHandler: walletAdminHandler,
		Middleware:         middlewares,
		JWTService:         jwtService,
	}
	routesConfig.Setup()
	return app, nil
}
