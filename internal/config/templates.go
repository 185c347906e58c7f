package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# TradeLens Configuration

[server]
addr = ":8080"
public_url = "http://localhost:8080"
# Requests per second allowed per authenticated user
rate_limit = 10.0
rate_burst = 20

[database]
# Driver: "sqlite3" (local) or "postgres"
driver = "sqlite3"
# Empty DSN with sqlite3 uses tradelens.db in the config directory
dsn = ""

[log]
level = "info"
console = true
json = false
file = false

[cache]
# Leave empty to use the in-memory cache
redis_url = ""
ttl = "5m"

[storage]
images_dir = ""
public_base_url = "http://localhost:8080/files"
max_image_bytes = 5242880

[billing]
return_url = "http://localhost:3000/billing/success"
cancel_url = "http://localhost:3000/billing/cancel"

[billing.paypal]
enabled = false
base_url = "https://api-m.sandbox.paypal.com"
webhook_id = ""

[billing.cashfree]
enabled = false
base_url = "https://sandbox.cashfree.com"
api_version = "2023-08-01"

[billing.nowpayments]
enabled = false
base_url = "https://api.nowpayments.io"

[[billing.plans]]
id = "pro_monthly"
name = "Pro Monthly"
price = "19.00"
currency = "USD"
duration_days = 30

[[billing.plans]]
id = "pro_yearly"
name = "Pro Yearly"
price = "190.00"
currency = "USD"
duration_days = 365

[email]
enabled = false
sender_name = "TradeLens"
sender_email = "no-reply@tradelens.app"
batch_size = 25
concurrency = 4
max_attempts = 5
initial_backoff = "1m"
max_backoff = "1h"

[cron]
enabled = true
# Six fields: seconds minutes hours day month weekday
email_dispatch = "*/30 * * * * *"
subscription_sweep = "0 0 * * * *"
profile_refresh = "0 */15 * * * *"
trade_digest = "0 0 21 * * *"

[subscription]
trial_days = 7
reminder_days = 3

[notify]
# Levels: "all", "important" (account, billing and digest events) or "off"
in_app = "all"
email = "important"
`

const credentialsTemplate = `# TradeLens Credentials
# WARNING: Keep this file secure! Do not commit to version control.

# Supabase project JWT secret (HS256)
jwt_secret = ""

[paypal]
client_id = ""
client_secret = ""

[cashfree]
app_id = ""
secret_key = ""

[nowpayments]
api_key = ""
ipn_secret = ""

[brevo]
api_key = ""
`

func createTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}
	return nil
}
