package cmd

import (
	_ "termhost/cmd/misc"
	_ "termhost/cmd/root"
	_ "termhost/cmd/server"
	_ "termhost/cmd/service"
	_ "termhost/cmd/update"
)
