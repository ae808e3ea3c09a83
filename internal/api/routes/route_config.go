package routes

import (
	"Pasarku-Backend/internal/api/handlers"
	"Pasarku-Backend/internal/middleware"
	"Pasarku-Backend/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

type Config struct {
	App                *fiber.App
	UserHandler        handlers.UserHandler
	WalletHandler      handlers.WalletHandler
	WalletAdminHandler handlers.WalletAdminHandler
	Middleware         middleware.Middleware
	JWTService         jwt.JWTService
}

func (c *Config) Setup() {
	c.App.Use(c.Middleware.CORSMiddleware())
	c.User()
	c.Wallet()
	c.WalletAdmin()
	c.GuestRoute()
}

func (c *Config) User() {
	user := c.App.Group("/api/v1/users")
	{
		user.Post("/register", c.UserHandler.Register)
		user.Post("/login", c.UserHandler.Login)
		user.Get("/me", c.Middleware.AuthMiddleware(c.JWTService), c.UserHandler.Me)
	}
}

func (c *Config) Wallet() {
	wallet := c.App.Group("/api/v1/wallet", c.Middleware.AuthMiddleware(c.JWTService))
	{
		wallet.Get("", c.WalletHandler.GetWallet)
		wallet.Get("/transactions", c.WalletHandler.GetTransactionHistory)
		wallet.Post("/redeem", c.WalletHandler.RedeemCoins)
		wallet.Post("/redeem/spend", c.WalletHandler.SpendReservedCoins)
		wallet.Post("/redeem/release", c.WalletHandler.ReleaseReservedCoins)
		wallet.Post("/rewards/first-purchase", c.WalletHandler.ProcessFirstPurchaseReward)
	}
}

func (c *Config) WalletAdmin() {
	admin := c.App.Group(
		"/api/v1/admin/wallet",
		c.Middleware.AuthMiddleware(c.JWTService),
		c.Middleware.AdminOnly(),
	)
	{
		admin.Get("/settings", c.WalletAdminHandler.GetSettings)
		admin.Patch("/settings", c.WalletAdminHandler.UpdateSettings)
		admin.Post("/adjust", c.WalletAdminHandler.AdjustCoins)
		admin.Post("/promote", c.WalletAdminHandler.PromoteCoins)
		admin.Get("/wallets", c.WalletAdminHandler.ListWallets)
		admin.Post("/expire", c.WalletAdminHandler.ExpireCoins)
		admin.Get("/reconcile", c.WalletAdminHandler.Reconcile)
	}
}

func (c *Config) GuestRoute() {
	c.App.Get("/api/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "pong"})
	})
}
