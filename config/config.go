package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

var (
	MongoURI       string
	DBName         string
	Port           string
	Environment    string
	JWTSecret      string
	SendGridAPIKey string
	EmailFromName  string
	EmailFromAddr  string
	GeminiAPIKey   string
)

// LoadConfig loads environment variables from .env file
func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using default values or system environment variables")
	}

	MongoURI = os.Getenv("MONGO_URI")
	if MongoURI == "" {
		MongoURI = "mongodb://localhost:27017/"
	}

	DBName = os.Getenv("DB_NAME")
	if DBName == "" {
		DBName = "mysterymessage"
	}

	Port = os.Getenv("PORT")
	if Port == "" {
		Port = "8080"
	}

	Environment = os.Getenv("ENV")
	if Environment == "" {
		Environment = "development"
	}

	JWTSecret = os.Getenv("JWT_SECRET")

	SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")

	EmailFromName = os.Getenv("EMAIL_FROM_NAME")
	if EmailFromName == "" {
		EmailFromName = "Mystery Message"
	}
	EmailFromAddr = os.Getenv("EMAIL_FROM_ADDR")
	if EmailFromAddr == "" {
		EmailFromAddr = "no-reply@mysterymessage.app"
	}

	GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
}
