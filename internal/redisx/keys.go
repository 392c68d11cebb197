package redisx

import (
	"fmt"
	"time"
)

const (
	// Order storefront yang sudah di-import: idem:woo:order:{external_ref} -> sales_order_id
	KeyImportedOrder = "idem:woo:order:%s"

	// Cache id kamar storefront: woo:room:{profile_id}:{room_name} -> room_id
	KeyRoom = "woo:room:%s:%s"

	// Hasil run terakhir: sync:last:{profile_id}:{flow} -> Result JSON
	KeyLastRun = "sync:last:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLImported = 24 * time.Hour
	TTLRoom     = 24 * time.Hour
	TTLLastRun  = 7 * 24 * time.Hour
	TTLDedup    = 48 * time.Hour
)

func ImportedOrderKey(externalRef string) string { return fmt.Sprintf(KeyImportedOrder, externalRef) }

func RoomKey(profileID, roomName string) string { return fmt.Sprintf(KeyRoom, profileID, roomName) }

func LastRunKey(profileID, flow string) string { return fmt.Sprintf(KeyLastRun, profileID, flow) }

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
