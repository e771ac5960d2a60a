package consts

import "time"

const (
	// TIME_FORMAT is the XMLTV timestamp layout.
	TIME_FORMAT = "20060102150405 -0700"

	GENERATOR_NAME = "HomelabDashboard"
	GENERATOR_URL  = "https://github.com/homelab/homelab-epg"

	UA        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	UA_POLITE = "HomelabDashboard/1.0 (EPG Scraper)"

	DEFAULT_ZIP    = "92108"
	DEFAULT_REGION = "10199"
	DEFAULT_LANG   = "en"

	EPGSHARE_URL    = "https://epgshare01.online/epgshare01/"
	GRACENOTE_URL   = "https://tvlistings.gracenote.com"
	ZAP2IT_URL      = "https://tvlistings.zap2it.com"
	TVMAZE_URL      = "https://api.tvmaze.com"
	ONTVTONIGHT_URL = "https://www.ontvtonight.com"

	REQUEST_TIMEOUT = 30 * time.Second
	PROBE_TIMEOUT   = 15 * time.Second
)
