// Package browser starts and stops profile browsers on the daemon and keeps
// at most one attached remote-control session per profile.
//
// The Controller issues start/stop/active calls. Its SessionCache owns every
// Session and is the only place drivers get closed:
//
//	ctrl := browser.NewController(client, browser.NewPlaywrightFactory())
//	session, err := ctrl.Sessions().Acquire(ctx, id, true)
//	if err != nil {
//	    return err
//	}
//	defer ctrl.Sessions().Release(id)
//
//	if err := session.Navigate(ctx, "https://example.com"); err != nil {
//	    return err
//	}
//	html, err := session.Content(ctx)
//
// Drivers are pluggable through DriverFactory. PlaywrightFactory connects to
// the profile's Chromium over the DevTools protocol.
package browser
